// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "X-Forwarded-For single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			remoteAddr: "127.0.0.1:12345",
			want:       "203.0.113.50",
		},
		{
			name:       "X-Forwarded-For multiple IPs (rightmost non-private used)",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18, 150.172.238.178"},
			remoteAddr: "127.0.0.1:12345",
			want:       "150.172.238.178",
		},
		{
			name:       "X-Forwarded-For all private falls back to rightmost",
			headers:    map[string]string{"X-Forwarded-For": " 10.0.0.1 "},
			remoteAddr: "127.0.0.1:12345",
			want:       "10.0.0.1",
		},
		{
			name:       "X-Real-IP used when no X-Forwarded-For",
			headers:    map[string]string{"X-Real-IP": "192.168.1.100"},
			remoteAddr: "127.0.0.1:12345",
			want:       "192.168.1.100",
		},
		{
			name:       "X-Real-IP takes precedence over X-Forwarded-For",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "10.0.0.2"},
			remoteAddr: "127.0.0.1:12345",
			want:       "10.0.0.2",
		},
		{
			name:       "fallback to RemoteAddr with port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1:54321",
			want:       "192.168.1.1",
		},
		{
			name:       "fallback to RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
		{
			name:       "empty headers fallback to RemoteAddr",
			headers:    map[string]string{"X-Forwarded-For": "", "X-Real-IP": ""},
			remoteAddr: "10.0.0.5:8080",
			want:       "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := getRealIP(req)
			if got != tt.want {
				t.Errorf("getRealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.9", true},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"fc00::1", true},
		{"203.0.113.50", false},
		{"2001:db8::1", false},
		{"not-an-ip", false},
	}

	for _, tt := range tests {
		if got := isPrivateIP(tt.ip); got != tt.want {
			t.Errorf("isPrivateIP(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
