package middleman_test

import (
	"fmt"

	"cardrelay/middleman"
)

func ExampleCompose() {
	inverter := &middleman.Configured{
		InTransformer: func(pdu middleman.PDU) (middleman.PDU, error) {
			out := make(middleman.PDU, len(pdu))
			for i, b := range pdu {
				out[i] = ^b
			}
			return out, nil
		},
	}

	m := middleman.Compose(
		middleman.ConsoleLogger("ReaderSide"),
		inverter,
		middleman.ConsoleLogger("CardSide"),
	)

	cmd, _ := m.HandleInPDU(middleman.PDU{0x00, 0xA4})
	fmt.Println("to card:", cmd)

	resp, _ := m.HandleOutPDU(middleman.PDU{0x90, 0x00})
	fmt.Println("to reader:", resp)
	// Output:
	// ReaderSide-In: 00 A4
	// CardSide-In: FF 5B
	// to card: FF 5B
	// CardSide-Out: 90 00
	// ReaderSide-Out: 90 00
	// to reader: 90 00
}
