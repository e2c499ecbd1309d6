// Package debug provides observe-only middlemen that record the APDU
// stream for offline inspection.
package debug

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"cardrelay/middleman"
)

// Synthetic endpoints.  Commands travel reader -> card, responses
// card -> reader, so Wireshark's "Follow TCP stream" shows one
// conversation per relay.
const (
	readerPort = layers.TCPPort(35963)
	cardPort   = layers.TCPPort(35964)
	snapLen    = uint32(65536)

	// maxSegment bounds the payload of one packet so that the frame
	// stays under snapLen and the IPv4 total length fits in 16 bits.
	// Larger PDUs are written as consecutive segments.
	maxSegment = 16384
)

var serializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

type pcapTap struct {
	mu     sync.Mutex
	writer *pcapgo.Writer
	header bool
	inSeq  uint32
	outSeq uint32
	now    func() time.Time
}

// NewPcapTap returns a middleman that writes every PDU it sees to w as
// a pcap capture.  Each PDU becomes the payload of one Ethernet/IPv4/TCP
// packet, or of several when it exceeds maxSegment bytes; the file
// header is written before the first packet.
func NewPcapTap(w io.Writer) *middleman.Configured {
	t := &pcapTap{
		writer: pcapgo.NewWriter(w),
		now:    time.Now,
	}
	return &middleman.Configured{
		InObserver:  func(pdu middleman.PDU) error { return t.write(middleman.In, pdu) },
		OutObserver: func(pdu middleman.PDU) error { return t.write(middleman.Out, pdu) },
	}
}

func (t *pcapTap) write(dir middleman.Direction, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.header {
		if err := t.writer.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
			return fmt.Errorf("failed writing pcap header: %w", err)
		}
		t.header = true
	}

	for {
		n := len(data)
		if n > maxSegment {
			n = maxSegment
		}
		if err := t.segment(dir, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

func (t *pcapTap) segment(dir middleman.Direction, data []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		DstMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{127, 0, 0, 1},
		DstIP:    net.IP{127, 0, 0, 1},
	}
	tcp := &layers.TCP{Window: 16, PSH: true, ACK: true}
	if dir == middleman.In {
		tcp.SrcPort, tcp.DstPort = readerPort, cardPort
		tcp.Seq, tcp.Ack = t.inSeq, t.outSeq
	} else {
		tcp.SrcPort, tcp.DstPort = cardPort, readerPort
		tcp.Seq, tcp.Ack = t.outSeq, t.inSeq
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("failed preparing checksum: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, serializeOptions,
		eth, ip, tcp, gopacket.Payload(data),
	); err != nil {
		return fmt.Errorf("failed serializing layers: %w", err)
	}

	packet := buffer.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     t.now(),
		CaptureLength: len(packet),
		Length:        len(packet),
	}
	if err := t.writer.WritePacket(ci, packet); err != nil {
		return fmt.Errorf("failed writing packet data: %w", err)
	}

	if dir == middleman.In {
		t.inSeq += uint32(len(data))
	} else {
		t.outSeq += uint32(len(data))
	}
	return nil
}
