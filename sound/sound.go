package sound

import (
	"sync/atomic"
	"time"

	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// Gate menahan semua audio sampai interaksi user pertama. Ini kebutuhan
// lingkungan (browser/webview baru mengizinkan audio setelah gesture),
// bukan urusan sinkronisasi; cukup satu flag one-shot.
type Gate struct {
	unlocked atomic.Bool
}

func (g *Gate) Unlock() {
	if g.unlocked.CompareAndSwap(false, true) {
		utils.InfoLogger.Println("Audio unlocked by first user interaction")
	}
}

func (g *Gate) Unlocked() bool {
	return g.unlocked.Load()
}

// Beeper adalah output nada sesungguhnya; diimplementasikan UI shell.
type Beeper interface {
	Beep(freqHz int, duration time.Duration)
}

// logBeeper dipakai bila shell tidak memasang output audio.
type logBeeper struct{}

func (logBeeper) Beep(freqHz int, duration time.Duration) {
	utils.InfoLogger.Debugf("beep %dHz %s", freqHz, duration)
}

// SoundSettings hanya butuh toggle dari settings store.
type SoundSettings interface {
	SoundEnabled() bool
}

// Effects dilihat dispatcher: fire-and-forget, tanpa nilai balik.
type Effects interface {
	OrderConfirm()
	PaymentComplete()
}

// Player memainkan pola nada konfirmasi. Pola mengikuti kasir aslinya:
// konfirmasi order dua nada naik, pembayaran tiga nada naik.
type Player struct {
	gate     *Gate
	settings SoundSettings
	out      Beeper
}

func NewPlayer(gate *Gate, settings SoundSettings, out Beeper) *Player {
	if out == nil {
		out = logBeeper{}
	}
	return &Player{gate: gate, settings: settings, out: out}
}

func (p *Player) Gate() *Gate { return p.gate }

func (p *Player) enabled() bool {
	return p.gate.Unlocked() && p.settings.SoundEnabled()
}

// OrderConfirm -> nada konfirmasi order
func (p *Player) OrderConfirm() {
	if !p.enabled() {
		return
	}
	go func() {
		p.out.Beep(800, 200*time.Millisecond)
		time.Sleep(150 * time.Millisecond)
		p.out.Beep(1000, 200*time.Millisecond)
	}()
}

// PaymentComplete -> nada pembayaran selesai
func (p *Player) PaymentComplete() {
	if !p.enabled() {
		return
	}
	go func() {
		p.out.Beep(600, 150*time.Millisecond)
		time.Sleep(100 * time.Millisecond)
		p.out.Beep(800, 150*time.Millisecond)
		time.Sleep(100 * time.Millisecond)
		p.out.Beep(1000, 300*time.Millisecond)
	}()
}
