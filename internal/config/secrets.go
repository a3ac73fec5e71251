package config

import (
	"fmt"
	"os"
	"strings"
)

// FileSuffix marks the variable holding a path to a mounted secret, such as
// DEFUSAL_ADMIN_PASS_FILE=/run/secrets/admin_pass.
const FileSuffix = "_FILE"

// SecretFileError reports a *_FILE secret that could not be read.
type SecretFileError struct {
	Name string
	Path string
	Err  error
}

func (e *SecretFileError) Error() string {
	return fmt.Sprintf("failed to read secret %s from %s: %v", e.Name, e.Path, e.Err)
}

func (e *SecretFileError) Unwrap() error {
	return e.Err
}

// ResolveSecret returns the secret named by name. A mounted file named by
// name+FileSuffix wins over the plain variable; surrounding whitespace in the
// file is dropped. An unset secret is "" with no error.
func ResolveSecret(name string) (string, error) {
	if path := os.Getenv(name + FileSuffix); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", &SecretFileError{Name: name, Path: path, Err: err}
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(name), nil
}

// ResolveSecrets resolves each name in order and stops at the first failure.
func ResolveSecrets(names ...string) ([]string, error) {
	vals := make([]string, len(names))
	for i, name := range names {
		v, err := ResolveSecret(name)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
