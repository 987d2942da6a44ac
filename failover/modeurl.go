package failover

import "strings"

// Query parameters managed by the codec. Everything else in the query
// string passes through byte-for-byte, in its original order.
const (
	ModeParam   = "mode"
	BypassParam = "disablePerformanceFailover"

	ModeImmersive = "immersive"
	ModeText      = "text"
)

// ImmersiveURL rewrites raw so it explicitly requests the immersive
// experience. Both the mode override and the performance-failover bypass
// flag are set, so a shared immersive link never degrades to text mode on
// performance grounds.
func ImmersiveURL(raw string) string {
	return rewriteQuery(raw, map[string]string{
		ModeParam:   ModeImmersive,
		BypassParam: "1",
	}, nil)
}

// TextModeURL rewrites raw so it explicitly requests the text substitute.
// The bypass flag is stripped; it only makes sense alongside immersive mode.
func TextModeURL(raw string) string {
	return rewriteQuery(raw, map[string]string{
		ModeParam: ModeText,
	}, []string{BypassParam})
}

// ParseModeParams decodes the mode override and bypass flag from a raw
// query string (with or without a leading '?'). mode is "" when absent or
// unrecognized.
func ParseModeParams(query string) (mode string, bypass bool) {
	query = strings.TrimPrefix(query, "?")
	for _, seg := range strings.Split(query, "&") {
		key, val := splitParam(seg)
		switch key {
		case ModeParam:
			if val == ModeImmersive || val == ModeText {
				mode = val
			}
		case BypassParam:
			if val == "1" || strings.EqualFold(val, "true") {
				bypass = true
			}
		}
	}
	return mode, bypass
}

// rewriteQuery replaces the managed parameters in raw, preserving every
// unmanaged segment verbatim. A managed parameter keeps its original
// position on replace and is appended otherwise; duplicates are collapsed
// to the first occurrence. The fragment is carried over untouched.
func rewriteQuery(raw string, set map[string]string, drop []string) string {
	base := raw
	fragment := ""
	if i := strings.IndexByte(base, '#'); i != -1 {
		fragment = base[i:]
		base = base[:i]
	}
	path := base
	query := ""
	if i := strings.IndexByte(base, '?'); i != -1 {
		path = base[:i]
		query = base[i+1:]
	}

	dropped := make(map[string]bool, len(drop))
	for _, key := range drop {
		dropped[key] = true
	}

	var segs []string
	if query != "" {
		segs = strings.Split(query, "&")
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(segs)+len(set))
	for _, seg := range segs {
		key, _ := splitParam(seg)
		if dropped[key] {
			continue
		}
		if val, managed := set[key]; managed {
			if seen[key] {
				continue
			}
			out = append(out, key+"="+val)
			seen[key] = true
			continue
		}
		out = append(out, seg)
	}
	// Append managed params that had no existing slot, in a fixed order.
	for _, key := range []string{ModeParam, BypassParam} {
		if val, managed := set[key]; managed && !seen[key] {
			out = append(out, key+"="+val)
		}
	}

	if len(out) == 0 {
		return path + fragment
	}
	return path + "?" + strings.Join(out, "&") + fragment
}

func splitParam(seg string) (key, val string) {
	if i := strings.IndexByte(seg, '='); i != -1 {
		return seg[:i], seg[i+1:]
	}
	return seg, ""
}
