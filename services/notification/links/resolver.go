// Package links extracts the best "open" target for a notification from the
// several shapes business modules store it in.
package links

import (
	"encoding/json"
	"net/url"
	"strings"

	"ankaa/models"
)

// Metadata keys that may carry an action link.
const (
	KeyActionURL     = "actionUrl"
	KeyActionLink    = "actionLink"
	KeyUniversalLink = "universalLink"
	KeyWebURL        = "webUrl"
	KeyWeb           = "web"
	KeyMobile        = "mobile"
	KeyMobileURL     = "mobileUrl"
)

// LinkKeys lists every metadata key consumed by Extract.
var LinkKeys = []string{KeyActionURL, KeyActionLink, KeyUniversalLink, KeyWebURL, KeyWeb, KeyMobile, KeyMobileURL}

// Extract collects link variants from metadata. The action record (structured,
// JSON-encoded, or bare URL) is read first; top-level keys fill the gaps.
// Malformed values are ignored.
func Extract(metadata map[string]any) models.ActionLink {
	var link models.ActionLink
	for _, key := range []string{KeyActionURL, KeyActionLink} {
		if v, ok := metadata[key]; ok {
			link = merge(link, parseValue(v))
		}
	}
	top := models.ActionLink{
		UniversalLink: stringValue(metadata[KeyUniversalLink]),
		Web:           firstNonEmpty(stringValue(metadata[KeyWebURL]), stringValue(metadata[KeyWeb])),
		Mobile:        firstNonEmpty(stringValue(metadata[KeyMobile]), stringValue(metadata[KeyMobileURL])),
	}
	return merge(link, top)
}

func parseValue(v any) models.ActionLink {
	switch val := v.(type) {
	case models.ActionLink:
		return val
	case *models.ActionLink:
		if val != nil {
			return *val
		}
	case map[string]any:
		return fromMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return fromMap(m)
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return models.ActionLink{}
			}
			return fromMap(m)
		}
		return models.ActionLink{Web: s}
	}
	return models.ActionLink{}
}

func fromMap(m map[string]any) models.ActionLink {
	return models.ActionLink{
		Web:           firstNonEmpty(stringValue(m[KeyWeb]), stringValue(m[KeyWebURL])),
		Mobile:        firstNonEmpty(stringValue(m[KeyMobile]), stringValue(m[KeyMobileURL])),
		UniversalLink: stringValue(m[KeyUniversalLink]),
	}
}

func merge(base, extra models.ActionLink) models.ActionLink {
	if base.Web == "" {
		base.Web = extra.Web
	}
	if base.Mobile == "" {
		base.Mobile = extra.Mobile
	}
	if base.UniversalLink == "" {
		base.UniversalLink = extra.UniversalLink
	}
	return base
}

// Resolver picks one URL per channel and resolves relative paths against the
// web application's base URL.
type Resolver struct {
	base *url.URL
}

// NewResolver returns a Resolver. An unparsable or empty baseURL disables
// resolution of relative paths.
func NewResolver(baseURL string) *Resolver {
	r := &Resolver{}
	if u, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && isHTTP(u) {
		r.base = u
	}
	return r
}

// Resolve returns the best link for ch, or "" when none is usable.
func (r *Resolver) Resolve(ch models.Channel, metadata map[string]any) string {
	return r.ResolveLink(ch, Extract(metadata))
}

// ResolveLink applies the channel priority to an already extracted link.
//
// Chat clients cannot open custom app schemes, so WHATSAPP prefers the
// universal link, then the web URL, and only then a relative path. Other
// channels prefer the plain web URL.
func (r *Resolver) ResolveLink(ch models.Channel, link models.ActionLink) string {
	var candidates []string
	if ch == models.ChannelWhatsApp {
		candidates = []string{link.UniversalLink, link.Web, link.Mobile}
	} else {
		candidates = []string{link.Web, link.UniversalLink, link.Mobile}
	}

	var relative string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		switch {
		case isHTTP(u):
			return u.String()
		case u.Scheme != "":
			// custom scheme such as ankaa://; not openable from a browser
			continue
		case relative == "" && u.Host == "" && u.Path != "" && !strings.ContainsAny(c, " \t"):
			relative = c
		}
	}
	if relative == "" || r.base == nil {
		return ""
	}
	ref, err := url.Parse(relative)
	if err != nil {
		return ""
	}
	return r.base.ResolveReference(ref).String()
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
