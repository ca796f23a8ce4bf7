package httpserver

import (
	"html/template"
	"net/http"

	"sathunt/internal/claim"
	"sathunt/internal/ledger"
)

// No HTML templating library appears anywhere in the corpus, so these
// fragments are rendered with html/template directly rather than adapted
// from a teacher dependency.

var collectPageTmpl = template.Must(template.New("collect").Parse(`<!doctype html>
<html><head><title>{{.LocationName}} — sathunt</title></head>
<body>
<h1>{{.LocationName}}</h1>
<p>Someone left satoshis here. Current balance: <strong>{{.VisibleBalance}}</strong> msats.</p>
<form method="post" action="/api/claim/{{.ScanID}}">
  <button type="submit">Collect</button>
</form>
</body></html>`))

var collectErrorTmpl = template.Must(template.New("collect-error").Parse(`<!doctype html>
<html><head><title>Tap failed — sathunt</title></head>
<body><h1>Couldn't verify this tap</h1><p>{{.}}</p></body></html>`))

var donationReceivedTmpl = template.Must(template.New("donation-received").Parse(
	`<div class="donation-status received">Received {{.AmountSats}} sats. Thank you.</div>`))

var donationPendingTmpl = template.Must(template.New("donation-pending").Parse(
	`<div class="donation-status pending" hx-get hx-trigger="load delay:1s">Waiting for payment…</div>`))

func renderCollectPage(w http.ResponseWriter, outcome *claim.ScanOutcome) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = collectPageTmpl.Execute(w, outcome)
}

func renderCollectError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = collectErrorTmpl.Execute(w, msg)
}

func renderDonationReceivedFragment(w http.ResponseWriter, d *ledger.Donation) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = donationReceivedTmpl.Execute(w, d)
}

func renderDonationPendingFragment(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = donationPendingTmpl.Execute(w, nil)
}
