package fetch

import "sync/atomic"

// browserSignature is one entry in the header rotation pool: a coherent
// set of headers that belong to the same real browser release, so a
// target site never sees a User-Agent mismatched against Sec-Ch-Ua.
type browserSignature struct {
	userAgent      string
	secChUa        string
	secChUaMobile  string
	secChUaPlatform string
	acceptLanguage string
}

var signaturePool = []browserSignature{
	{
		userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		secChUa:         `"Chromium";v="131", "Not_A Brand";v="24", "Google Chrome";v="131"`,
		secChUaMobile:   "?0",
		secChUaPlatform: `"Windows"`,
		acceptLanguage:  "en-US,en;q=0.9",
	},
	{
		userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
		secChUa:         "",
		secChUaMobile:   "",
		secChUaPlatform: "",
		acceptLanguage:  "en-US,en;q=0.9",
	},
	{
		userAgent:       "Mozilla/5.0 (X11; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0",
		secChUa:         "",
		secChUaMobile:   "",
		secChUaPlatform: "",
		acceptLanguage:  "en-US,en;q=0.5",
	},
}

// headerRotor hands out browser signatures round-robin across fetches.
type headerRotor struct {
	next uint64
}

func (r *headerRotor) next1() browserSignature {
	i := atomic.AddUint64(&r.next, 1) - 1
	return signaturePool[int(i)%len(signaturePool)]
}

func applyHeaders(req headerSetter, sig browserSignature, referer string) {
	req.Set("User-Agent", sig.userAgent)
	req.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Set("Accept-Language", sig.acceptLanguage)
	req.Set("Accept-Encoding", "gzip, deflate, br")
	if sig.secChUa != "" {
		req.Set("Sec-Ch-Ua", sig.secChUa)
		req.Set("Sec-Ch-Ua-Mobile", sig.secChUaMobile)
		req.Set("Sec-Ch-Ua-Platform", sig.secChUaPlatform)
	}
	if referer != "" {
		req.Set("Referer", referer)
	}
}

// headerSetter abstracts http.Header.Set so this file stays testable
// without constructing a full http.Request.
type headerSetter interface {
	Set(key, value string)
}
