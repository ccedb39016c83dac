package security

import (
	"testing"
	"time"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("unit-test-secret"))

	tok, exp, err := Generate(opts, "stu1", "student")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry must be in the future")
	}

	claims, err := Verify(opts, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "stu1" || claims.Role != "student" {
		t.Fatalf("claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _, err := Generate(DefaultOptions([]byte("secret-a")), "stu1", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(DefaultOptions([]byte("secret-b")), tok); err == nil {
		t.Fatal("token signed with another secret must fail")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("unit-test-secret"))
	opts.TTL = -time.Minute

	tok, _, err := Generate(opts, "stu1", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(opts, tok); err == nil {
		t.Fatal("expired token must fail")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	opts := DefaultOptions([]byte("unit-test-secret"))
	for _, tok := range []string{"", "abc", "a.b.c"} {
		if _, err := Verify(opts, tok); err == nil {
			t.Fatalf("garbage token %q must fail", tok)
		}
	}
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("s"), Alg: "RS256"}
	if _, _, err := Generate(opts, "u", ""); err == nil {
		t.Fatal("RS256 must be rejected")
	}
	if _, err := Verify(opts, "whatever"); err == nil {
		t.Fatal("RS256 must be rejected on verify")
	}
}
