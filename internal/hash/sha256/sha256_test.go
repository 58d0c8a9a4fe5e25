package sha256

import "testing"

func TestHasherHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "text", in: "hello world", want: "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{name: "empty", in: "", want: "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	h := New()
	for _, tt := range tests {
		got, err := h.Hash([]byte(tt.in))
		if err != nil {
			t.Fatalf("%s: Hash() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}
