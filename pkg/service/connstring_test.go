package service

import (
	"errors"
	"testing"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantEndpoint string
		wantKey      string
		wantErr      error
	}{
		{
			name:         "basic",
			input:        "Endpoint=https://relay.example.com;AccessKey=secret123;",
			wantEndpoint: "https://relay.example.com",
			wantKey:      "secret123",
		},
		{
			name:         "with port override",
			input:        "Endpoint=http://localhost;AccessKey=devkey;Port=8080;",
			wantEndpoint: "http://localhost:8080",
			wantKey:      "devkey",
		},
		{
			name:         "case insensitive keys",
			input:        "endpoint=https://relay.example.com;accesskey=k;",
			wantEndpoint: "https://relay.example.com",
			wantKey:      "k",
		},
		{
			name:         "unknown segments ignored",
			input:        "Endpoint=https://relay.example.com;AccessKey=k;Version=1.0;",
			wantEndpoint: "https://relay.example.com",
			wantKey:      "k",
		},
		{
			name:         "trailing slash trimmed",
			input:        "Endpoint=https://relay.example.com/;AccessKey=k",
			wantEndpoint: "https://relay.example.com",
			wantKey:      "k",
		},
		{
			name:    "missing endpoint",
			input:   "AccessKey=k;",
			wantErr: ErrMissingEndpoint,
		},
		{
			name:    "missing access key",
			input:   "Endpoint=https://relay.example.com;",
			wantErr: ErrMissingAccessKey,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ErrMissingEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseConnectionString(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseConnectionString(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConnectionString(%q) = %v", tt.input, err)
			}
			if info.Endpoint != tt.wantEndpoint {
				t.Errorf("Endpoint = %q, want %q", info.Endpoint, tt.wantEndpoint)
			}
			if info.AccessKey != tt.wantKey {
				t.Errorf("AccessKey = %q, want %q", info.AccessKey, tt.wantKey)
			}
		})
	}
}

func TestParseConnectionStringMalformed(t *testing.T) {
	for _, input := range []string{
		"Endpoint",
		"Endpoint=ftp://relay.example.com;AccessKey=k;",
		"Endpoint=https://relay.example.com;AccessKey=k;Port=notaport;",
	} {
		if _, err := ParseConnectionString(input); err == nil {
			t.Errorf("ParseConnectionString(%q) succeeded, want error", input)
		}
	}
}
