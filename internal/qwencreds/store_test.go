package qwencreds

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestStoreLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	s := NewStore(path)

	creds := &Creds{
		AccessToken:  "at-1",
		TokenType:    "Bearer",
		RefreshToken: "rt-1",
		ResourceURL:  "portal.qwen.ai",
		ExpiryDate:   time.Now().Add(6 * time.Hour).UnixMilli(),
	}
	if err := s.Save(creds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *creds {
		t.Fatalf("Load = %+v, want %+v", got, creds)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	s := NewStore(path)

	if err := s.Save(&Creds{AccessToken: "at"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	if _, err := s.Load(); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestLoadEmptyAccessToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	if err := os.WriteFile(path, []byte(`{"access_token": ""}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path).Load(); !errors.Is(err, ErrNoAccessToken) {
		t.Fatalf("err = %v, want ErrNoAccessToken", err)
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		expiry int64
		want   bool
	}{
		{"no expiry", 0, true},
		{"already expired", now.Add(-time.Hour).UnixMilli(), true},
		{"inside threshold", now.Add(time.Hour).UnixMilli(), true},
		{"exactly threshold", now.Add(RefreshThreshold).UnixMilli(), true},
		{"plenty of time", now.Add(10 * time.Hour).UnixMilli(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Creds{AccessToken: "at", ExpiryDate: tc.expiry}
			if got := c.NeedsRefresh(now); got != tc.want {
				t.Fatalf("NeedsRefresh = %v, want %v", got, tc.want)
			}
		})
	}
}
