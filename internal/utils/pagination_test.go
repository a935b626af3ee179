package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-1", 0, -1},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7}, // no trimming
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{1, 20, 1, 20},
		{0, 0, 1, DefaultPageSize},
		{-3, -1, 1, DefaultPageSize},
		{5, 1000, 5, MaxPageSize},
		{2, 1, 2, 1},
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%d,%d) = (%d,%d); want (%d,%d)", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestPageWindow(t *testing.T) {
	cases := []struct {
		total, page, size int
		start, end        int
	}{
		{0, 1, 20, 0, 0},
		{6, 1, 4, 0, 4},
		{6, 2, 4, 4, 6},
		{6, 3, 4, 6, 6},
		{6, 99, 4, 6, 6},
		{8, 2, 4, 4, 8},
	}
	for _, tc := range cases {
		s, e := PageWindow(tc.total, tc.page, tc.size)
		if s != tc.start || e != tc.end {
			t.Fatalf("PageWindow(%d,%d,%d) = [%d,%d); want [%d,%d)", tc.total, tc.page, tc.size, s, e, tc.start, tc.end)
		}
	}
}

func TestTotalPages(t *testing.T) {
	for _, tc := range []struct{ total, size, want int }{
		{0, 20, 0}, {1, 20, 1}, {20, 20, 1}, {21, 20, 2}, {6, 4, 2}, {5, 0, 0},
	} {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d) = %d; want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
