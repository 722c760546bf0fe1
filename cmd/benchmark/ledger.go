package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// Synthetic is a generated ledger with the accounts planted in rings.
type Synthetic struct {
	Transactions []domain.Transaction
	Planted      map[string]string // account -> planted pattern
}

// GenerateOptions sizes a synthetic ledger.
type GenerateOptions struct {
	Seed          uint64
	NoiseAccounts int
	NoiseTxs      int
	Cycles        int
	FanIns        int
	ShellChains   int
}

type generator struct {
	rng   *rand.Rand
	start time.Time
	seq   int
	out   *Synthetic
}

// Generate builds a ledger of random background transfers with cycles,
// fan-in collectors and shell chains planted in it.
func Generate(opts GenerateOptions) *Synthetic {
	g := &generator{
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		out:   &Synthetic{Planted: make(map[string]string)},
	}

	noise := make([]string, opts.NoiseAccounts)
	for i := range noise {
		noise[i] = fmt.Sprintf("ACC_%05d", i)
	}
	if len(noise) >= 2 {
		for i := 0; i < opts.NoiseTxs; i++ {
			from := noise[g.rng.IntN(len(noise))]
			to := noise[g.rng.IntN(len(noise))]
			if from == to {
				continue
			}
			g.add(from, to, 50+g.rng.Float64()*5000, g.randomTime(90*24*time.Hour))
		}
	}

	for i := 0; i < opts.Cycles; i++ {
		g.plantCycle(i, 3+g.rng.IntN(3))
	}
	for i := 0; i < opts.FanIns; i++ {
		g.plantFanIn(i)
	}
	for i := 0; i < opts.ShellChains && len(noise) >= 2; i++ {
		g.plantShellChain(i, noise)
	}
	return g.out
}

func (g *generator) add(from, to string, amount float64, ts time.Time) {
	g.seq++
	g.out.Transactions = append(g.out.Transactions, domain.Transaction{
		ID:         fmt.Sprintf("TX_%07d", g.seq),
		SenderID:   from,
		ReceiverID: to,
		Amount:     float64(int(amount*100)) / 100,
		Timestamp:  ts,
	})
}

func (g *generator) randomTime(span time.Duration) time.Time {
	return g.start.Add(time.Duration(g.rng.Int64N(int64(span))))
}

func (g *generator) plantCycle(n, length int) {
	members := make([]string, length)
	for i := range members {
		members[i] = fmt.Sprintf("CYC%03d_%d", n, i)
		g.out.Planted[members[i]] = string(domain.PatternCycle)
	}
	amount := 5000 + g.rng.Float64()*20000
	ts := g.randomTime(60 * 24 * time.Hour)
	for i := range members {
		g.add(members[i], members[(i+1)%length], amount, ts)
		amount *= 0.97
		ts = ts.Add(time.Duration(1+g.rng.IntN(6)) * time.Hour)
	}
}

func (g *generator) plantFanIn(n int) {
	collector := fmt.Sprintf("COL%03d", n)
	g.out.Planted[collector] = string(domain.PatternFanIn)
	ts := g.randomTime(60 * 24 * time.Hour)
	total := 0.0
	for i := 0; i < 12; i++ {
		mule := fmt.Sprintf("COL%03d_SRC%02d", n, i)
		g.out.Planted[mule] = string(domain.PatternFanIn)
		amount := 900 + g.rng.Float64()*90
		total += amount
		g.add(mule, collector, amount, ts.Add(time.Duration(i)*3*time.Hour))
	}
	g.add(collector, fmt.Sprintf("COL%03d_EXIT", n), total*0.95, ts.Add(40*time.Hour))
}

func (g *generator) plantShellChain(n int, noise []string) {
	source := noise[g.rng.IntN(len(noise))]
	dest := noise[g.rng.IntN(len(noise))]
	ts := g.randomTime(60 * 24 * time.Hour)
	amount := 20000 + g.rng.Float64()*30000

	prev := source
	for i := 0; i < 3; i++ {
		shell := fmt.Sprintf("SHL%03d_%d", n, i)
		g.out.Planted[shell] = string(domain.PatternShellChain)
		g.add(prev, shell, amount, ts)
		amount *= 0.98
		ts = ts.Add(2 * time.Hour)
		prev = shell
	}
	g.add(prev, dest, amount, ts)
}
