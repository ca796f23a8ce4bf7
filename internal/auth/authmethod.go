package auth

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MethodPassword     = "password"
	MethodOAuthGoogle  = "oauth_google"
	MethodOAuthGithub  = "oauth_github"
	MethodAnonymous    = "anonymous"
)

var ErrUnknownAuthMethod = errors.New("unknown auth method type")

// AuthMethod is how a user proves who they are. Exactly one of the fields
// is populated, selected by Type — a Go struct standing in for the
// original's tagged union, since storage is a flat (type, json) pair in
// ledger.User.AuthMethodType/AuthData.
type AuthMethod struct {
	Type         string
	PasswordHash string
	GoogleID     string
	GithubID     string
}

func Password(hash string) AuthMethod    { return AuthMethod{Type: MethodPassword, PasswordHash: hash} }
func OAuthGoogle(id string) AuthMethod   { return AuthMethod{Type: MethodOAuthGoogle, GoogleID: id} }
func OAuthGithub(id string) AuthMethod   { return AuthMethod{Type: MethodOAuthGithub, GithubID: id} }
func Anonymous() AuthMethod              { return AuthMethod{Type: MethodAnonymous} }

func (m AuthMethod) ToJSON() (string, error) {
	var payload map[string]string
	switch m.Type {
	case MethodPassword:
		payload = map[string]string{"password_hash": m.PasswordHash}
	case MethodOAuthGoogle:
		payload = map[string]string{"google_id": m.GoogleID}
	case MethodOAuthGithub:
		payload = map[string]string{"github_id": m.GithubID}
	case MethodAnonymous:
		payload = map[string]string{}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAuthMethod, m.Type)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func FromJSON(typeStr, data string) (AuthMethod, error) {
	var payload map[string]string
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return AuthMethod{}, fmt.Errorf("failed to parse auth data: %w", err)
		}
	}

	switch typeStr {
	case MethodPassword:
		hash, ok := payload["password_hash"]
		if !ok {
			return AuthMethod{}, errors.New("missing password_hash")
		}
		return Password(hash), nil
	case MethodOAuthGoogle:
		id, ok := payload["google_id"]
		if !ok {
			return AuthMethod{}, errors.New("missing google_id")
		}
		return OAuthGoogle(id), nil
	case MethodOAuthGithub:
		id, ok := payload["github_id"]
		if !ok {
			return AuthMethod{}, errors.New("missing github_id")
		}
		return OAuthGithub(id), nil
	case MethodAnonymous:
		return Anonymous(), nil
	default:
		return AuthMethod{}, fmt.Errorf("%w: %s", ErrUnknownAuthMethod, typeStr)
	}
}
