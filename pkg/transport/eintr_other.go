//go:build !unix

package transport

func interrupted(error) bool { return false }
