package tencent

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// buildSignString assembles the string the request signature is computed
// over: host and path (no scheme) followed by the query parameters sorted by
// key. The parameters must NOT be URL-encoded here; encoding happens only in
// the final URL.
func buildSignString(endpoint, appID string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(trimEndpoint(endpoint))
	b.WriteString("/")
	b.WriteString(appID)
	b.WriteString("?")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

// sign computes the base64-encoded HMAC-SHA1 of the sign string.
func sign(signString, secretKey string) string {
	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(signString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signedURL builds the full wss:// URL with an appended signature parameter.
func signedURL(endpoint, appID, secretKey string, params map[string]string) string {
	signature := sign(buildSignString(endpoint, appID, params), secretKey)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("signature", signature)

	return "wss://" + trimEndpoint(endpoint) + "/" + appID + "?" + values.Encode()
}

// trimEndpoint strips any scheme prefix and trailing slash so endpoint
// configuration is forgiving about both.
func trimEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "wss://")
	return strings.TrimSuffix(endpoint, "/")
}
