package credentials

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("secret", "portfolio-backend", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, err := iss.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 42 {
		t.Errorf("subject = %d, want 42", id)
	}

	other, _ := iss.Issue(42)
	if other == token {
		t.Error("tokens should carry distinct ids")
	}
}

func TestParse_Expired(t *testing.T) {
	iss, _ := NewIssuer("secret", "portfolio-backend", time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return base }

	token, err := iss.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	iss.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Parse(expired) = %v, want ErrInvalidCredential", err)
	}
}

func TestParse_NoExpiry(t *testing.T) {
	iss, _ := NewIssuer("secret", "", 0)
	token, err := iss.Issue(9)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	iss.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	if id, err := iss.Parse(token); err != nil || id != 9 {
		t.Errorf("Parse = %d, %v", id, err)
	}
}

func TestParse_Rejects(t *testing.T) {
	iss, _ := NewIssuer("secret", "portfolio-backend", time.Hour)
	otherKey, _ := NewIssuer("different", "portfolio-backend", time.Hour)
	otherIssuer, _ := NewIssuer("secret", "someone-else", time.Hour)

	foreign, _ := otherKey.Issue(1)
	wrongIss, _ := otherIssuer.Issue(1)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "portfolio-backend"}).
		SignedString([]byte("secret"))

	cases := map[string]string{
		"garbage":       "not-a-jwt",
		"wrong key":     foreign,
		"wrong issuer":  wrongIss,
		"alg none":      none,
		"empty subject": noSubject,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Parse = %v, want ErrInvalidCredential", err)
			}
		})
	}
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", "x", time.Hour); err == nil {
		t.Error("NewIssuer should reject an empty secret")
	}
}
