package upstox

import (
	"path/filepath"
	"testing"
	"time"
)

func TestToken_ExpiresAt(t *testing.T) {
	// Issued at 10:00 IST: dies at 03:30 IST the next morning.
	issued := time.Date(2025, 1, 6, 10, 0, 0, 0, istZone)
	tok := &Token{AccessToken: "x", Timestamp: issued}
	want := time.Date(2025, 1, 7, 3, 30, 0, 0, istZone)
	if !tok.ExpiresAt().Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt(), want)
	}

	// Issued at 02:00 IST: dies the same morning.
	early := &Token{AccessToken: "x", Timestamp: time.Date(2025, 1, 6, 2, 0, 0, 0, istZone)}
	want = time.Date(2025, 1, 6, 3, 30, 0, 0, istZone)
	if !early.ExpiresAt().Equal(want) {
		t.Errorf("early ExpiresAt = %v, want %v", early.ExpiresAt(), want)
	}
}

func TestToken_LikelyExpired(t *testing.T) {
	issued := time.Date(2025, 1, 6, 10, 0, 0, 0, istZone)
	tok := &Token{AccessToken: "x", Timestamp: issued}

	if tok.LikelyExpired(time.Date(2025, 1, 6, 15, 0, 0, 0, istZone)) {
		t.Error("token expired same afternoon")
	}
	if !tok.LikelyExpired(time.Date(2025, 1, 7, 4, 0, 0, 0, istZone)) {
		t.Error("token survived past 03:30 IST next day")
	}
	if !(&Token{}).LikelyExpired(time.Now()) {
		t.Error("empty token considered live")
	}
}

func TestToken_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	in := &Token{
		AccessToken: "tok789",
		UserID:      "FY1234",
		UserName:    "Trader",
		Timestamp:   time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
	}
	if err := SaveToken(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.AccessToken != in.AccessToken || out.UserID != in.UserID {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}
}

func TestLoadToken_Missing(t *testing.T) {
	if _, err := LoadToken(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("want error for missing token file")
	}
}
