package reach

import (
	"testing"

	"github.com/dalzilio/rudd"
)

func TestProbeRuddBisect(t *testing.T) {
	b, err := rudd.New(256, rudd.Nodesize(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	src := rint{b: b, vars: mkvars(32, 32)}
	cond1 := src.rng(ipVal("192.168.0.0"), ipVal("192.168.255.255"))
	cond2 := b.Apply(src.rng(ipVal("192.168.5.0"), ipVal("192.168.5.255")),
		src.rng(ipVal("172.16.0.0"), ipVal("172.16.255.255")), rudd.OPor)
	in := src.value(ipVal("8.8.8.8"))
	srcset := b.Makeset(src.vars)

	and1 := b.Apply(in, cond1, rudd.OPand)
	t.Logf("in&cond1 == False? %v", *and1 == *b.False())
	ex1 := b.Exist(and1, srcset)
	t.Logf("Exist(False) == False? %v", *ex1 == *b.False())
	rem := b.Apply(in, cond1, rudd.OPdiff)
	t.Logf("in diff cond1 == in? %v", *rem == *in)
	and2 := b.Apply(rem, cond2, rudd.OPand)
	t.Logf("rem&cond2 == False? %v (val=%d)", *and2 == *b.False(), *and2)
	// recompute in&cond2 fresh
	and2b := b.Apply(in, cond2, rudd.OPand)
	t.Logf("in&cond2 == False? %v (val=%d)", *and2b == *b.False(), *and2b)
	// same op WITHOUT the Exist call in between, fresh BDD
	b2, _ := rudd.New(256, rudd.Nodesize(1<<20))
	src2 := rint{b: b2, vars: mkvars(32, 32)}
	cond2x := b2.Apply(src2.rng(ipVal("192.168.5.0"), ipVal("192.168.5.255")),
		src2.rng(ipVal("172.16.0.0"), ipVal("172.16.255.255")), rudd.OPor)
	cond1x := src2.rng(ipVal("192.168.0.0"), ipVal("192.168.255.255"))
	inx := src2.value(ipVal("8.8.8.8"))
	_ = cond1x
	andx := b2.Apply(inx, cond2x, rudd.OPand)
	t.Logf("fresh, no Exist: in&cond2 == False? %v", *andx == *b2.False())
	// now do an Exist on b2 and retry the same Apply
	srcset2 := b2.Makeset(src2.vars)
	_ = b2.Exist(b2.Apply(inx, cond1x, rudd.OPand), srcset2)
	andy := b2.Apply(inx, cond2x, rudd.OPand)
	t.Logf("after Exist: in&cond2 == False? %v", *andy == *b2.False())
}
