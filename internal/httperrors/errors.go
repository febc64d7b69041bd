// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors categorizes HTTP transport failures so they read well in
// step results and on the terminal.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Category names a class of network failure.
type Category string

const (
	Timeout           Category = "timeout"
	DNS               Category = "dns lookup failed"
	ConnectionRefused Category = "connection refused"
	TLS               Category = "tls error"
	Server            Category = "server error"
	Network           Category = "network error"
)

// Classify returns the category of a transport error.
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return ConnectionRefused
	case isSSLError(err):
		return TLS
	case isServerError(err.Error()):
		return Server
	}
	return Network
}

// Tag prefixes err with its category, keeping it unwrappable.
func Tag(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", Classify(err), err)
}

// Present prints a short troubleshooting hint for err to the terminal.
// target is the URL or host that was being contacted.
func Present(err error, context, target string) {
	if err == nil {
		return
	}
	host := ExtractHostFromURL(target)
	switch Classify(err) {
	case Timeout:
		pterm.Warning.Printf("Timed out while %s (%s)\n", context, host)
		pterm.Println("  • Check that the API is reachable and not overloaded")
		pterm.Println("  • Raise http.timeout if the endpoint is slow by nature")
	case DNS:
		pterm.Error.Printf("Cannot resolve %s while %s\n", host, context)
		pterm.Println("  • Check api.base_url and your DNS settings")
	case ConnectionRefused:
		pterm.Error.Printf("Connection refused by %s while %s\n", host, context)
		pterm.Println("  • Is the platform API running on that port?")
	case TLS:
		pterm.Error.Printf("Secure connection to %s failed while %s\n", host, context)
		pterm.Println("  • Check the certificate and your system clock")
	case Server:
		pterm.Error.Printf("%s returned a server error while %s\n", host, context)
	default:
		pterm.Error.Printf("Cannot reach %s while %s\n", host, context)
	}
	short := err.Error()
	if len(short) > 100 {
		short = short[:100] + "..."
	}
	pterm.Debug.Printf("Technical details: %s\n", short)
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate")
}

// isServerError checks if the error indicates a server-side problem (5xx errors).
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, s := range []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
