package network

import "testing"

func TestResolvePresets(t *testing.T) {
	cases := map[string]string{
		"local": presetLocal,
		"anvil": presetAnvil,
		"main":  presetMain,
		"test":  presetTest,
	}
	for name, want := range cases {
		urls, err := Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if len(urls) != 1 || urls[0] != want {
			t.Fatalf("Resolve(%q) = %v, want [%s]", name, urls, want)
		}
	}
}

func TestResolveQA(t *testing.T) {
	urls, err := Resolve("qa,7")
	if err != nil {
		t.Fatalf("Resolve(qa,7): %v", err)
	}
	if len(urls) != 1 || urls[0] != qaURLTemplate(7) {
		t.Fatalf("Resolve(qa,7) = %v", urls)
	}

	urls, err = Resolve("qa,7,8")
	if err != nil {
		t.Fatalf("Resolve(qa,7,8): %v", err)
	}
	if len(urls) != 2 || urls[0] != qaURLTemplate(7) || urls[1] != qaURLTemplate(8) {
		t.Fatalf("Resolve(qa,7,8) = %v", urls)
	}

	if _, err := Resolve("qa,notanumber"); err == nil {
		t.Fatalf("Resolve(qa,notanumber) should fail")
	}
}

func TestResolveURLListDropsInvalid(t *testing.T) {
	urls, err := Resolve("http://a.example:8545, not-a-url , http://b.example:8545")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected invalid entry dropped, got %v", urls)
	}
}

func TestResolveAllInvalidFails(t *testing.T) {
	if _, err := Resolve("not-a-url, also not one"); err == nil {
		t.Fatalf("Resolve should fail when every URL is invalid")
	}
}

func TestResolveEmptyFails(t *testing.T) {
	if _, err := Resolve(""); err == nil {
		t.Fatalf("Resolve(\"\") should fail")
	}
}
