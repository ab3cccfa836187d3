package security

import (
	"testing"
	"time"
)

func TestNewSafeClient_ReturnsClient(t *testing.T) {
	guard := NewDownloadGuard()

	client := guard.NewSafeClient(30 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient returned nil")
	}
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 30*time.Second)
	}
}

func TestValidateURL(t *testing.T) {
	guard := NewDownloadGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https URL", url: "https://cdn.example.com/video.mp4", wantErr: false},
		{name: "http URL", url: "http://cdn.example.com/video.mp4", wantErr: false},
		{name: "empty URL", url: "", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/video.mp4", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "no host", url: "https:///video.mp4", wantErr: true},
		{name: "loopback IP", url: "http://127.0.0.1/video.mp4", wantErr: true},
		{name: "private IP", url: "http://192.168.1.10/video.mp4", wantErr: true},
		{name: "metadata IP", url: "http://169.254.169.254/latest/meta-data", wantErr: true},
		{name: "unspecified IP", url: "http://0.0.0.0/video.mp4", wantErr: true},
		{name: "public IP", url: "http://93.184.216.34/video.mp4", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr = %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
