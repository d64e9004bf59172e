package signer

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func TestSignMatchesReferenceHMAC(t *testing.T) {
	s, err := NewSigner("key", "secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	body := []byte(`{"type":"LIMIT"}`)
	got := s.Sign("v2/auth/w/funding/offer/submit", "1700000000000000", body)

	mac := hmac.New(sha512.New384, []byte("secret"))
	mac.Write([]byte(`/api/v2/auth/w/funding/offer/submit1700000000000000{"type":"LIMIT"}`))
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("signature mismatch:\n got %s\nwant %s", got, want)
	}
	if !Verify("secret", "v2/auth/w/funding/offer/submit", "1700000000000000", body, got) {
		t.Fatalf("verify rejected a valid signature")
	}
	if Verify("other", "v2/auth/w/funding/offer/submit", "1700000000000000", body, got) {
		t.Fatalf("verify accepted a signature for another secret")
	}
}

func TestNonceStrictlyIncreasing(t *testing.T) {
	s, _ := NewSigner("key", "secret")
	frozen := time.Unix(1700000000, 0)
	s.now = func() time.Time { return frozen }

	prev := int64(0)
	for i := 0; i < 100; i++ {
		n, err := strconv.ParseInt(s.Nonce(), 10, 64)
		if err != nil {
			t.Fatalf("nonce not numeric: %v", err)
		}
		if n <= prev {
			t.Fatalf("nonce %d not greater than %d", n, prev)
		}
		prev = n
	}
}

func TestHeadersAndWipe(t *testing.T) {
	s, _ := NewSigner("key", "secret")
	h := s.Headers("v2/auth/r/wallets", nil)
	if h[HeaderAPIKey] != "key" || h[HeaderNonce] == "" || len(h[HeaderSignature]) != 96 {
		t.Fatalf("unexpected headers: %v", h)
	}
	s.Wipe()
	for _, b := range s.apiSecret {
		if b != 0 {
			t.Fatalf("secret not wiped")
		}
	}
	if _, err := NewSigner("", "x"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
