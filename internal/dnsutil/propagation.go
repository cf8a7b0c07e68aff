package dnsutil

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"cert-renewer/internal/domain"
)

// DNSTimeout 单次查询超时
const DNSTimeout = 10 * time.Second

// Checker 查询权威服务器，确认 TXT 记录已生效
type Checker struct {
	Nameservers []string
	Timeout     time.Duration
	Interval    time.Duration
}

// NewChecker 创建检查器，nameservers 为空时返回 nil
func NewChecker(nameservers []string, timeout, interval time.Duration) *Checker {
	if len(nameservers) == 0 {
		return nil
	}
	servers := make([]string, 0, len(nameservers))
	for _, ns := range nameservers {
		servers = append(servers, withPort(ns))
	}
	return &Checker{Nameservers: servers, Timeout: timeout, Interval: interval}
}

func withPort(ns string) string {
	if _, _, err := net.SplitHostPort(ns); err == nil {
		return ns
	}
	return net.JoinHostPort(ns, "53")
}

// WaitForValues 等待 name 下的 TXT 记录在每个 nameserver 上都包含 values
func (c *Checker) WaitForValues(ctx context.Context, name string, values []string) error {
	if c == nil {
		return nil
	}

	fqdn := domain.Fqdn(name)
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var lastErr error
	for {
		ok, err := c.checkAll(fqdn, values)
		if ok {
			log.Printf("[DNS检查] 记录已生效: %s", name)
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("等待记录 %s 生效超时: %w", name, lastErr)
			}
			return fmt.Errorf("等待记录 %s 生效超时", name)
		case <-time.After(c.Interval):
		}
	}
}

func (c *Checker) checkAll(fqdn string, values []string) (bool, error) {
	for _, ns := range c.Nameservers {
		found, err := LookupTXT(fqdn, ns)
		if err != nil {
			return false, err
		}
		if !containsAll(found, values) {
			return false, nil
		}
	}
	return true, nil
}

// LookupTXT 向指定服务器查询 TXT 记录，UDP 截断时改用 TCP
func LookupTXT(fqdn, nameserver string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
	m.SetEdns0(4096, false)

	udp := &dns.Client{Net: "udp", Timeout: DNSTimeout}
	in, _, err := udp.Exchange(m, nameserver)
	if in != nil && in.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: DNSTimeout}
		in, _, err = tcp.Exchange(m, nameserver)
	}
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", nameserver, err)
	}

	// NXDOMAIN 说明记录尚未生效
	if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("%s 返回 %s", nameserver, dns.RcodeToString[in.Rcode])
	}

	var values []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

func containsAll(found, values []string) bool {
	set := make(map[string]struct{}, len(found))
	for _, v := range found {
		set[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
