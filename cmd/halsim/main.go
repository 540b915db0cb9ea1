// Command halsim boots a simulated cluster and drives it through the
// scenarios spec.md describes in §8: a slave start/release/reset cycle,
// a sleep/wakeup round trip, and a producer/consumer handoff over a
// semaphore. It exists to exercise the hal packages end to end the way
// the teacher's cmd/inos-node exercises its kernel.
package main

import (
	"fmt"
	"time"

	"github.com/nanvix-go/hal/cluster"
	"github.com/nanvix-go/hal/config"
	"github.com/nanvix-go/hal/event"
	"github.com/nanvix-go/hal/klog"
	"github.com/nanvix-go/hal/syncprim"
)

func main() {
	log := klog.New("hal/sim", klog.INFO)
	cfg := config.Default()
	cl := cluster.New(cfg)

	master := cfg.MasterCoreID
	slave := (master + 1) % cfg.CoresNum()

	log.Info("cluster booted", klog.Int("cores", cfg.CoresNum()), klog.Int("master", master))
	cl.FenceRelease()

	var slaveDone = make(chan struct{})
	go func() {
		cl.FenceWait()
		cl.RunSlaveMain(slave)
	}()

	done := make(chan struct{})
	if err := cl.CoreStart(master, slave, func() {
		log.Info("slave running", klog.Int("core", slave))
		close(done)
		if err := cl.CoreRelease(slave); err != nil {
			log.Error("release failed", klog.Err(err))
		}
		if err := cl.CoreReset(slave); err != nil {
			log.Error("reset failed", klog.Err(err))
		}
	}); err != nil {
		log.Error("start failed", klog.Err(err))
		return
	}

	<-done
	time.Sleep(10 * time.Millisecond)
	log.Info("slave state after cycle", klog.String("state", cl.State(slave).String()))

	woke := make(chan struct{})
	if err := cl.CoreStart(master, slave, func() {
		cl.CoreSleep(slave)
		close(woke)
		_ = cl.CoreRelease(slave)
		_ = cl.CoreReset(slave)
	}); err != nil || cl.CoreWakeup(slave) != nil {
		log.Error("sleep/wakeup scenario failed")
		return
	}
	<-woke
	log.Info("slave woke from sleep", klog.Int("core", slave))

	bus := event.New(cfg.CoresNum())
	sem := syncprim.NewSemaphore(0, bus)

	var produced int
	go func() {
		for i := 0; i < 3; i++ {
			produced++
			sem.Up()
			time.Sleep(time.Millisecond)
		}
	}()

	consumed := 0
	for consumed < 3 {
		sem.Down(slave)
		consumed++
	}
	fmt.Printf("produced=%d consumed=%d final-sem-count=%d\n", produced, consumed, sem.Count())

	close(slaveDone)
	log.Info("simulation complete")
}
