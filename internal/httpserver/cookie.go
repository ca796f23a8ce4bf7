package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"sathunt/internal/auth"
)

const userCookieName = "sathunt_uid"

// signUserID HMACs a user id under the server's cookie secret, so a client
// cannot forge another finder's anonymous identity by editing the cookie.
// No cookie-signing library appears anywhere in the corpus, so this is a
// direct crypto/hmac construction rather than an adapted one.
func signUserID(secret []byte, userID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	return userID + "." + hex.EncodeToString(mac.Sum(nil))
}

func verifyUserID(secret []byte, cookieValue string) (string, bool) {
	idx := strings.LastIndexByte(cookieValue, '.')
	if idx < 0 {
		return "", false
	}
	userID, sig := cookieValue[:idx], cookieValue[idx+1:]

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return "", false
	}
	return userID, true
}

// identifyFinder reads and verifies the anonymous-user cookie, minting a
// fresh id when it is absent, malformed, or fails verification.
func (s *Server) identifyFinder(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(userCookieName); err == nil {
		if userID, ok := verifyUserID(s.cookieSecret, c.Value); ok {
			return userID
		}
	}
	return auth.NewAnonymousID()
}

// setFinderCookie persists userID as the finder's identity for a year, so
// they can return and withdraw what they collected.
func (s *Server) setFinderCookie(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     userCookieName,
		Value:    signUserID(s.cookieSecret, userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().AddDate(1, 0, 0),
	})
}
