// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"net/url"
	"sort"
	"strings"
)

// canonicalize normalizes a URL for grouping purposes per spec.md §4.8 step
// 4: strip the fragment, remove tracking query params, lowercase default
// ports, and trim a trailing slash (except for the bare root path).
func canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""

	if u.Host != "" {
		host := strings.ToLower(u.Hostname())
		port := u.Port()
		if (port == "80" && u.Scheme == "http") || (port == "443" && u.Scheme == "https") {
			port = ""
		}
		if port != "" {
			host = host + ":" + port
		}
		u.Host = host
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := url.Values{}
		for _, k := range keys {
			for _, v := range q[k] {
				vals.Add(k, v)
			}
		}
		u.RawQuery = vals.Encode()
	}

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	switch lower {
	case "gclid", "fbclid":
		return true
	}
	return false
}
