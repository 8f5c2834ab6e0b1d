package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("zh", "error.self_invitation"); got != "不能邀请自己" {
		t.Fatalf("zh translation: %s", got)
	}
	if got := T("en", "no.such.key"); got != "no.such.key" {
		t.Fatalf("missing key should echo: %s", got)
	}
}

func TestEveryEnglishKeyTranslated(t *testing.T) {
	for key := range translations["en"] {
		if _, ok := Lookup("zh", key); !ok {
			t.Errorf("zh missing %s", key)
		}
	}
}
