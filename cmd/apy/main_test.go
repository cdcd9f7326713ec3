package main

import (
	"maps"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{"empty", "", map[string]string{}, false},
		{"comments and blanks", "# c\n\nHTTP=:9090\n", map[string]string{"HTTP": ":9090"}, false},
		{"double quoted", `LOG_LEVEL="debug"`, map[string]string{"LOG_LEVEL": "debug"}, false},
		{"equals in value", "A=b=c", map[string]string{"A": "b=c"}, false},
		{"no equals", "JUNK\nHISTORY=true", map[string]string{"HISTORY": "true"}, false},
		{"single quoted", "A='b'", nil, true},
		{"unbalanced single quote", "A='b", nil, true},
		{"bad double quote", `A="b`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := loadDotEnv(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !maps.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	t.Run("missing file", func(t *testing.T) {
		got, err := loadDotEnv(t.TempDir())
		if err != nil || len(got) != 0 {
			t.Errorf("got %v, %v", got, err)
		}
	})
}
