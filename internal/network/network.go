// Package network resolves the --network flag into a concrete set of
// JSON-RPC endpoint URLs: a named preset, a "qa,NN[,MM]" environment
// selector, or a literal comma-separated URL list.
package network

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Preset URLs for the well-known named networks. Real deployments vary
// these per environment; these are the defaults a bare --network=<name>
// resolves to absent an override.
const (
	presetLocal = "http://localhost:8545"
	presetAnvil = "http://127.0.0.1:8545"
	presetMain  = "https://prod-mainnet.example.com:8545"
	presetTest  = "https://prod-testnet.example.com:8545"
)

// qaURLTemplate builds a qa environment's URL from its numeric id.
func qaURLTemplate(n int) string {
	return fmt.Sprintf("https://dev-qa%02d.example.com:8545", n)
}

// Resolve turns the --network flag's raw value into an ordered list of
// endpoint URLs; duplicates are kept. Invalid URLs in an explicit list are logged and
// silently dropped rather than aborting the whole run.
func Resolve(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("network: empty --network value")
	}

	switch {
	case raw == "local":
		return []string{presetLocal}, nil
	case raw == "anvil":
		return []string{presetAnvil}, nil
	case raw == "main":
		return []string{presetMain}, nil
	case raw == "test":
		return []string{presetTest}, nil
	case strings.HasPrefix(raw, "qa"):
		return resolveQA(raw)
	default:
		return resolveURLList(raw)
	}
}

// resolveQA parses "qa,NN" or "qa,NN,MM" into one or two qa environment
// URLs (a contiguous pair of QA hosts sharing one run, per spec.md's
// qa,NN[,MM] selector).
func resolveQA(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("network: malformed qa selector %q", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("network: qa selector %q: %w", raw, err)
	}
	urls := []string{qaURLTemplate(n)}
	if len(parts) == 3 {
		m, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("network: qa selector %q: %w", raw, err)
		}
		urls = append(urls, qaURLTemplate(m))
	}
	return urls, nil
}

// resolveURLList treats raw as a literal comma-separated list of RPC
// endpoint URLs, dropping (and logging) any entry that fails to parse.
func resolveURLList(raw string) ([]string, error) {
	candidates := strings.Split(raw, ",")
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil || u.Scheme == "" || u.Host == "" {
			log.Warn("network: dropping invalid endpoint URL", "value", c)
			continue
		}
		urls = append(urls, c)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("network: no valid endpoint URLs in %q", raw)
	}
	return urls, nil
}
