// Command dnsquery sends a single DNS query over UDP or TCP and prints
// the parsed reply. Handy for poking at a running relay.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jroosing/relaydns/internal/dns"
	"github.com/jroosing/relaydns/internal/helpers"
)

func main() {
	var (
		server  = flag.String("server", "127.0.0.1:53", "DNS server HOST:PORT")
		name    = flag.String("name", "example.com", "Query name")
		qtype   = flag.Int("qtype", 1, "Query type (numeric, A=1, AAAA=28, PTR=12)")
		useTCP  = flag.Bool("tcp", false, "Query over TCP instead of UDP")
		edns    = flag.Int("edns", 0, "Advertise an EDNS(0) UDP payload size (0 = no EDNS)")
		timeout = flag.Duration("timeout", 2*time.Second, "Timeout")
		quiet   = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	resp, err := query(*server, *name, uint16(*qtype), *useTCP, *edns, *timeout)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	m, err := dns.ParseMessage(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	fmt.Printf("id=%d rcode=%d tc=%t answers=%d authorities=%d additionals=%d\n",
		m.Header.ID,
		dns.RCodeFromFlags(m.Header.Flags),
		m.Header.Flags&dns.TCFlag != 0,
		len(m.Answers),
		len(m.Authorities),
		len(m.Additionals),
	)
	for _, rr := range m.Answers {
		fmt.Println(formatRR(rr))
	}
	for _, rr := range m.Authorities {
		fmt.Println(formatRR(rr))
	}
}

func query(server, name string, qtype uint16, useTCP bool, edns int, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	req, err := buildQuery(name, qtype, edns)
	if err != nil {
		return nil, err
	}
	if useTCP {
		return queryTCP(server, req, timeout)
	}
	return queryUDP(server, req, edns, timeout)
}

func buildQuery(name string, qtype uint16, edns int) ([]byte, error) {
	b := dns.NewBuilder(uint16(rand.Uint32()), dns.RDFlag, dns.AbsoluteMaxMessageData)
	err := b.PutQuestion(dns.Question{
		Name:  strings.TrimSuffix(name, "."),
		Type:  dns.RecordType(qtype),
		Class: dns.ClassIN,
	})
	if err != nil {
		return nil, err
	}
	if edns > 0 {
		// Minimal OPT advertising the requested payload size.
		opt := make([]byte, 11)
		binary.BigEndian.PutUint16(opt[1:3], uint16(dns.TypeOPT))
		binary.BigEndian.PutUint16(opt[3:5], helpers.ClampIntToUint16(helpers.ClampInt(edns, 512, 65535)))
		if err := b.PutRawRR(dns.SectionAdditional, opt); err != nil {
			return nil, err
		}
	}
	return b.Finish(), nil
}

func queryUDP(server string, req []byte, edns int, timeout time.Duration) ([]byte, error) {
	c, err := net.Dial("udp", server)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(req); err != nil {
		return nil, err
	}
	recvSize := helpers.ClampInt(edns, dns.MinMessageSize, 65535)
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func queryTCP(server string, req []byte, timeout time.Duration) ([]byte, error) {
	c, err := net.Dial("tcp", server)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	prefixed := make([]byte, 2+len(req))
	binary.BigEndian.PutUint16(prefixed[0:2], uint16(len(req)))
	copy(prefixed[2:], req)
	if _, err := c.Write(prefixed); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c, lenBuf[:]); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(c, body); err != nil {
		return nil, err
	}
	return body, nil
}

func formatRR(rr dns.Record) string {
	name := rr.Name
	if name == "" {
		name = "."
	}
	switch rr.Type {
	case dns.TypeA:
		if ip, ok := rr.IPv4(); ok {
			return fmt.Sprintf("%s %d IN A %s", name, rr.TTL, ip)
		}
	case dns.TypeAAAA:
		if ip, ok := rr.IPv6(); ok {
			return fmt.Sprintf("%s %d IN AAAA %s", name, rr.TTL, ip)
		}
	case dns.TypeCNAME:
		if target, ok := rr.Data.(string); ok {
			return fmt.Sprintf("%s %d IN CNAME %s.", name, rr.TTL, target)
		}
	case dns.TypePTR:
		if target, ok := rr.Data.(string); ok {
			return fmt.Sprintf("%s %d IN PTR %s.", name, rr.TTL, target)
		}
	case dns.TypeSOA:
		if soa, ok := rr.Data.(dns.SOAData); ok {
			return fmt.Sprintf("%s %d IN SOA %s. %s. %d", name, rr.TTL, soa.MName, soa.RName, soa.Serial)
		}
	}
	return fmt.Sprintf("%s %d IN TYPE%d", name, rr.TTL, rr.Type)
}
