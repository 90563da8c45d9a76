package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("onigiri-2024")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if !Verify("onigiri-2024", encoded) {
		t.Fatalf("expected password to verify")
	}
	if Verify("onigiri-2025", encoded) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestHashUsesRandomSalt(t *testing.T) {
	a, _ := Hash("same")
	b, _ := Hash("same")
	if a == b {
		t.Fatalf("expected distinct hashes")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plain-text",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$a2V5",
	}
	for _, encoded := range cases {
		if Valid(encoded) {
			t.Fatalf("expected %q to be invalid", encoded)
		}
		if Verify("anything", encoded) {
			t.Fatalf("expected %q not to verify", encoded)
		}
	}
}
