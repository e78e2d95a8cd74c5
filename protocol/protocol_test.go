package protocol

import (
	"errors"
	"testing"
)

func TestRequestEncodeGet(t *testing.T) {
	req := Request{Command: CommandGet, Path: "/srv/data.bin", Offset: 1024}
	if got := req.Encode(); got != "GET /srv/data.bin 1024\n" {
		t.Errorf("unexpected GET line: %q", got)
	}
}

func TestRequestEncodePut(t *testing.T) {
	req := Request{Command: CommandPut, Path: "/srv/data.bin", Offset: 512, TotalSize: 4096}
	if got := req.Encode(); got != "PUT /srv/data.bin 512 4096\n" {
		t.Errorf("unexpected PUT line: %q", got)
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr error
	}{
		{
			name: "get",
			line: "GET /tmp/file.txt 100\n",
			want: Request{Command: CommandGet, Path: "/tmp/file.txt", Offset: 100},
		},
		{
			name: "put",
			line: "PUT /tmp/file.txt 0 2048\n",
			want: Request{Command: CommandPut, Path: "/tmp/file.txt", TotalSize: 2048},
		},
		{
			name: "lowercase verb",
			line: "get /tmp/file.txt 0",
			want: Request{Command: CommandGet, Path: "/tmp/file.txt"},
		},
		{
			name: "non-numeric offset decodes as zero",
			line: "GET /tmp/file.txt abc",
			want: Request{Command: CommandGet, Path: "/tmp/file.txt"},
		},
		{
			name:    "empty line",
			line:    "\n",
			wantErr: ErrInvalidCommand,
		},
		{
			name:    "whitespace only",
			line:    "   \r\n",
			wantErr: ErrInvalidCommand,
		},
		{
			name:    "get missing offset",
			line:    "GET /tmp/file.txt",
			wantErr: ErrMissingArguments,
		},
		{
			name:    "put missing total size",
			line:    "PUT /tmp/file.txt 0",
			wantErr: ErrMissingArguments,
		},
		{
			name:    "unknown verb",
			line:    "DELETE /tmp/file.txt 0",
			wantErr: ErrUnknownCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		{Command: CommandGet, Path: "/a/b/c", Offset: 0},
		{Command: CommandGet, Path: "relative/path", Offset: 18446744073709551615},
		{Command: CommandPut, Path: "/x", Offset: 7, TotalSize: 9},
	}
	for _, req := range reqs {
		got, err := ParseRequest(req.Encode())
		if err != nil {
			t.Fatalf("ParseRequest(%q) failed: %v", req.Encode(), err)
		}
		if got != req {
			t.Errorf("round trip mismatch: sent %+v, got %+v", req, got)
		}
	}
}
