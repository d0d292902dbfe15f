package env

import (
	"strings"
	"testing"
)

func environMap(t *testing.T, e *Env) map[string]string {
	t.Helper()
	m := make(map[string]string)
	for _, kv := range e.Environ() {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			t.Fatalf("malformed entry %q", kv)
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

func TestOverridesWinOverInherited(t *testing.T) {
	t.Setenv("MD_TEST_KEY", "inherited")
	m := environMap(t, New([]string{"MD_TEST_KEY=override", "HEAP=-Xms1g -Xmx4g"}))
	if m["MD_TEST_KEY"] != "override" {
		t.Fatalf("MD_TEST_KEY = %q", m["MD_TEST_KEY"])
	}
	if m["HEAP"] != "-Xms1g -Xmx4g" {
		t.Fatalf("HEAP = %q", m["HEAP"])
	}
}

func TestInheritsProcessEnvironment(t *testing.T) {
	t.Setenv("MD_TEST_INHERIT", "yes")
	m := environMap(t, New(nil))
	if m["MD_TEST_INHERIT"] != "yes" {
		t.Fatal("process environment not inherited")
	}
}

func TestExpansion(t *testing.T) {
	t.Setenv("MD_TEST_BASE", "/opt/java")
	m := environMap(t, New([]string{"JAVA_HOME=${MD_TEST_BASE}/jdk17"}))
	if m["JAVA_HOME"] != "/opt/java/jdk17" {
		t.Fatalf("JAVA_HOME = %q", m["JAVA_HOME"])
	}
}

func TestMalformedEntriesSkipped(t *testing.T) {
	m := environMap(t, New([]string{"novalue", "=empty", "OK=1"}))
	if m["OK"] != "1" {
		t.Fatal("valid entry lost")
	}
	if _, ok := m[""]; ok {
		t.Fatal("empty key accepted")
	}
}
