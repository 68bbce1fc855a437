package storage

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestSecureRoundTrip(t *testing.T) {
	base := NewMemoryStore()
	secure, err := NewSecure(base, []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"card": "4111-1111", "cvv": float64(123)}

	for _, compress := range []bool{false, true} {
		if err := secure.SetSecure("payment", want, SecureOptions{Compress: compress}); err != nil {
			t.Fatalf("SetSecure(compress=%v) = %v", compress, err)
		}
		got, ok := secure.GetSecure("payment")
		if !ok {
			t.Fatalf("GetSecure(compress=%v) reported absent", compress)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("GetSecure(compress=%v) = %#v, want %#v", compress, got, want)
		}
	}
}

func TestSecureStoresNoPlaintext(t *testing.T) {
	base := NewMemoryStore()
	secure, err := NewSecure(base, []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := secure.SetSecure("k", "top-secret-value", SecureOptions{}); err != nil {
		t.Fatal(err)
	}

	// The sealed record lives under the layer's prefix.
	raw, ok := base.Get(securePrefix + "k")
	if !ok {
		t.Fatal("sealed record missing from base store")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(encoded), "top-secret-value") {
		t.Fatal("plaintext leaked into the stored record")
	}
	// The logical key is not stored directly either.
	if _, ok := base.Get("k"); ok {
		t.Fatal("unprefixed key present in base store")
	}
}

func TestSecureWrongSecretReadsAsAbsent(t *testing.T) {
	base := NewMemoryStore()
	writer, err := NewSecure(base, []byte("right"))
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.SetSecure("k", "v", SecureOptions{}); err != nil {
		t.Fatal(err)
	}

	reader, err := NewSecure(base, []byte("wrong"))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reader.GetSecure("k"); ok {
		t.Fatalf("GetSecure with wrong secret = %#v, true", v)
	}
}

func TestSecureTamperedRecordReadsAsAbsent(t *testing.T) {
	base := NewMemoryStore()
	secure, err := NewSecure(base, []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := secure.SetSecure("k", "v", SecureOptions{}); err != nil {
		t.Fatal(err)
	}

	raw, _ := base.Get(securePrefix + "k")
	record := raw.(map[string]any)
	record["data"] = "AAAA" + record["data"].(string)[4:]
	if err := base.Set(securePrefix+"k", record); err != nil {
		t.Fatal(err)
	}
	if v, ok := secure.GetSecure("k"); ok {
		t.Fatalf("GetSecure on tampered record = %#v, true", v)
	}

	// A record that is not a sealed envelope at all also reads as absent.
	if err := base.Set(securePrefix+"k", "garbage"); err != nil {
		t.Fatal(err)
	}
	if _, ok := secure.GetSecure("k"); ok {
		t.Fatal("GetSecure on malformed record = true")
	}
}

func TestSecureReplayUnderOtherKeyFails(t *testing.T) {
	base := NewMemoryStore()
	secure, err := NewSecure(base, []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := secure.SetSecure("alpha", "v", SecureOptions{}); err != nil {
		t.Fatal(err)
	}

	// Copy the sealed record under a different logical key. The key acts
	// as authenticated data, so the copy must not decrypt.
	record, _ := base.Get(securePrefix + "alpha")
	if err := base.Set(securePrefix+"beta", record); err != nil {
		t.Fatal(err)
	}
	if v, ok := secure.GetSecure("beta"); ok {
		t.Fatalf("replayed record decrypted as %#v", v)
	}
}

func TestSecureRemove(t *testing.T) {
	base := NewMemoryStore()
	secure, err := NewSecure(base, []byte("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := secure.SetSecure("k", "v", SecureOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := secure.RemoveSecure("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := secure.GetSecure("k"); ok {
		t.Fatal("value survived RemoveSecure")
	}
	if base.Has(securePrefix + "k") {
		t.Fatal("sealed record survived RemoveSecure")
	}
}

func TestSecureRequiresSecret(t *testing.T) {
	if _, err := NewSecure(NewMemoryStore(), nil); err == nil {
		t.Fatal("NewSecure with empty secret succeeded")
	}
}
