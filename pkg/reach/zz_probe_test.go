package reach

import (
	"testing"
)

// Same sequence as TestNatForward "no rule matches", repeated for both
// small and large initial node tables.
func TestProbeGbcTrigger(t *testing.T) {
	for i := 0; i < 5; i++ {
		f := natTestFactory(t)
		src := f.pkt.SrcIP
		nats := []compiledNat{
			{
				condition: src.Range(ipVal("192.168.0.0"), ipVal("192.168.255.255")),
				poolRange: src.Range(ipVal("1.2.3.4"), ipVal("1.2.3.10")),
			},
			{
				condition: src.Range(ipVal("192.168.5.0"), ipVal("192.168.5.255")).
					Or(src.Range(ipVal("172.16.0.0"), ipVal("172.16.255.255"))),
				poolRange: src.Range(ipVal("5.5.5.5"), ipVal("5.5.5.5")),
			},
		}
		forward := f.natForward(nats)
		in := src.Value(ipVal("8.8.8.8"))
		out := forward(in)
		t.Logf("iter %d: out==in? %v", i, out.Equal(in))
	}
}
