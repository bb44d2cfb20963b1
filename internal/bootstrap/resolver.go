package bootstrap

import (
	"chordkv/internal/config"
	"chordkv/internal/logger"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const defaultResolver = "8.8.8.8:53"

// ResolveBootstrap resolves bootstrap peers into a list of "host:port" addresses.
//
// Behavior:
//   - mode=static → returns the configured peers.
//   - mode=dns    → resolves peers via DNS (SRV or A/AAAA), always querying
//     the fixed server defaultResolver; the system resolver configuration
//     is not consulted.
//   - If DNS resolution fails or returns no records, returns an empty list (not an error).
func ResolveBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) ([]string, error) {
	switch cfg.Mode {
	case "static":
		return cfg.Peers, nil

	case "dns":
		client := &dns.Client{Timeout: 2 * time.Second}
		server := defaultResolver

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if cfg.SRV {
			return resolveSRV(ctx, client, server, cfg.DNSName, lgr)
		}
		return resolveA(ctx, client, server, cfg.DNSName, cfg.Port, lgr)

	default:
		return nil, fmt.Errorf("unsupported bootstrap mode: %s", cfg.Mode)
	}
}

// resolveSRV queries an SRV record (qname must already be fully qualified,
// e.g. "_chordkv._tcp.ring.example.com") and resolves each target to an
// address, falling back to a fresh A/AAAA query when the additional
// section doesn't carry glue records for it.
func resolveSRV(ctx context.Context, client *dns.Client, server, qname string, lgr logger.Logger) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(qname), dns.TypeSRV)
	lgr.Info("sending SRV query", logger.F("qname", msg.Question[0].Name))

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		lgr.Warn("SRV lookup failed", logger.F("err", err.Error()), logger.F("qname", qname))
		return []string{}, nil
	}
	if len(in.Answer) == 0 {
		lgr.Warn("SRV lookup returned no answers", logger.F("qname", qname))
		return []string{}, nil
	}

	glue := map[string][]string{}
	for _, extra := range in.Extra {
		switch rr := extra.(type) {
		case *dns.A:
			name := strings.TrimSuffix(rr.Hdr.Name, ".")
			glue[name] = append(glue[name], rr.A.String())
		case *dns.AAAA:
			name := strings.TrimSuffix(rr.Hdr.Name, ".")
			glue[name] = append(glue[name], rr.AAAA.String())
		}
	}

	out := []string{}
	for _, ans := range in.Answer {
		srv, ok := ans.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		ips, found := glue[target]
		if !found {
			ips = lookupHost(ctx, client, server, target)
		}
		for _, ip := range ips {
			out = append(out, joinHostPort(ip, srv.Port))
		}
	}
	return out, nil
}

func lookupHost(ctx context.Context, client *dns.Client, server, target string) []string {
	var ips []string
	msgA := new(dns.Msg)
	msgA.SetQuestion(dns.Fqdn(target), dns.TypeA)
	if inA, _, err := client.ExchangeContext(ctx, msgA, server); err == nil {
		for _, a := range inA.Answer {
			if arec, ok := a.(*dns.A); ok {
				ips = append(ips, arec.A.String())
			}
		}
	}
	msgAAAA := new(dns.Msg)
	msgAAAA.SetQuestion(dns.Fqdn(target), dns.TypeAAAA)
	if inAAAA, _, err := client.ExchangeContext(ctx, msgAAAA, server); err == nil {
		for _, a := range inAAAA.Answer {
			if aaaa, ok := a.(*dns.AAAA); ok {
				ips = append(ips, aaaa.AAAA.String())
			}
		}
	}
	return ips
}

func resolveA(ctx context.Context, client *dns.Client, server, dnsName string, port int, lgr logger.Logger) ([]string, error) {
	name := dns.Fqdn(dnsName)
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeA)

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		lgr.Warn("A lookup failed", logger.F("err", err.Error()), logger.F("qname", name))
		return []string{}, nil
	}

	out := []string{}
	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			out = append(out, joinHostPort(a.A.String(), uint16(port)))
		}
	}

	if len(out) == 0 {
		msg6 := new(dns.Msg)
		msg6.SetQuestion(name, dns.TypeAAAA)
		if in6, _, err6 := client.ExchangeContext(ctx, msg6, server); err6 == nil {
			for _, ans := range in6.Answer {
				if aaaa, ok := ans.(*dns.AAAA); ok {
					out = append(out, joinHostPort(aaaa.AAAA.String(), uint16(port)))
				}
			}
		}
	}

	if len(out) == 0 {
		lgr.Warn("host lookup returned no addresses", logger.F("qname", name))
	}
	return out, nil
}

func joinHostPort(ip string, port uint16) string {
	if strings.Contains(ip, ":") {
		return fmt.Sprintf("[%s]:%d", ip, port)
	}
	return fmt.Sprintf("%s:%d", ip, port)
}
