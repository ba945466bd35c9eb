package console

import "testing"

func TestNormalizePredicate(t *testing.T) {
	cases := map[string]string{
		"/api/foo":    "/api/foo/**",
		"/api/foo/":   "/api/foo/**",
		"/api/foo/**": "/api/foo/**",
	}
	for in, want := range cases {
		if got := NormalizePredicate(in); got != want {
			t.Fatalf("NormalizePredicate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeURI(t *testing.T) {
	cases := map[string]string{
		"svc:8080":          "http://svc:8080",
		"http://svc:8080":   "http://svc:8080",
		"https://svc:8443/": "https://svc:8443/",
	}
	for in, want := range cases {
		if got := NormalizeURI(in); got != want {
			t.Fatalf("NormalizeURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidIPv4(t *testing.T) {
	valid := []string{"192.168.1.1", "0.0.0.0", "255.255.255.255"}
	invalid := []string{"256.1.1.1", "1.2.3", "1.2.3.4.5", "a.b.c.d", "", " 1.2.3.4", "1.2.3.1000"}
	for _, ip := range valid {
		if !ValidIPv4(ip) {
			t.Fatalf("expected %q to be valid", ip)
		}
	}
	for _, ip := range invalid {
		if ValidIPv4(ip) {
			t.Fatalf("expected %q to be invalid", ip)
		}
	}
}

func TestPercentDelta(t *testing.T) {
	cases := []struct {
		current, previous int64
		want              int
	}{
		{5, 0, 100},
		{0, 0, 0},
		{15, 10, 50},
		{5, 10, -50},
		{1, 3, -67},
		{2, 3, -33},
		{1, 8, -87},
		{3, 8, -62},
	}
	for _, tc := range cases {
		if got := PercentDelta(tc.current, tc.previous); got != tc.want {
			t.Fatalf("PercentDelta(%d, %d) = %d, want %d", tc.current, tc.previous, got, tc.want)
		}
	}
}

func TestClamping(t *testing.T) {
	if ClampMaxRequests(0) != 1 || ClampMaxRequests(-4) != 1 || ClampMaxRequests(7) != 7 {
		t.Fatalf("unexpected max request clamping")
	}
	if ClampTimeWindowMs(999) != 1000 || ClampTimeWindowMs(5000) != 5000 {
		t.Fatalf("unexpected window clamping")
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	p := Paginate(items, 2, 5)
	if len(p.Items) != 2 || p.Items[0] != 6 || p.TotalPages != 2 || p.Total != 7 {
		t.Fatalf("unexpected page %+v", p)
	}
	if p := Paginate(items, 9, 5); p.Page != 2 {
		t.Fatalf("expected page clamped to 2, got %d", p.Page)
	}
	empty := Paginate([]int{}, 1, 5)
	if empty.TotalPages != 1 || len(empty.Items) != 0 {
		t.Fatalf("unexpected empty page %+v", empty)
	}
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	got := Filter([]string{"Alpha", "beta", "ALPHABET"}, "alpha", func(s string) string { return s })
	if len(got) != 2 {
		t.Fatalf("expected two matches, got %v", got)
	}
}
