package vo

import (
	"errors"
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr error
	}{
		{"", 0, nil},
		{"0", 0, nil},
		{"500", 500, nil},
		{"20k", ByteSize(20 * KB), nil},
		{"20KB", ByteSize(20 * KB), nil},
		{"1.5M", ByteSize(MB + MB/2), nil},
		{"2g", ByteSize(2 * GB), nil},
		{" 1 TB ", ByteSize(TB), nil},
		{"12B", 12, nil},
		{"lots", 0, ErrInvalidSize},
		{"-5M", 0, ErrNegativeSize},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseByteSize(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseByteSize(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{ByteSize(KB), "1.00 KB"},
		{ByteSize(5 * MB / 2), "2.50 MB"},
		{ByteSize(3 * GB), "3.00 GB"},
		{ByteSize(2 * TB), "2.00 TB"},
	}

	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", int64(tt.size), got, tt.want)
		}
	}
}
