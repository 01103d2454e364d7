package pool_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/users-cluster/internal/pool"
)

var _ = Describe("ExecLauncher", func() {
	var launcher *pool.ExecLauncher

	BeforeEach(func() {
		launcher = pool.NewExecLauncher(os.Args[0], func(spec pool.Spec) []string {
			return []string{"-test.run=^TestHelperWorker$", "--", strconv.Itoa(spec.ID), strconv.Itoa(spec.Port)}
		})
		launcher.Env = []string{"POOL_HELPER_WORKER=1"}
		launcher.Stdout = GinkgoWriter
		launcher.Stderr = GinkgoWriter
		launcher.WaitDelay = time.Second
	})

	It("should run real worker processes behind the pool", func() {
		log := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		p := pool.New(launcher, pool.Options{
			Host:          "127.0.0.1",
			BasePort:      freeBasePort(2),
			SpawnTimeout:  10 * time.Second,
			StopTimeout:   5 * time.Second,
			ProbeInterval: 20 * time.Millisecond,
		}, log)

		Expect(p.Initialize(context.Background(), 2)).To(Succeed())
		workers := p.Workers()
		Expect(workers).To(HaveLen(2))

		for _, w := range workers {
			Expect(w.Pid()).NotTo(Equal(os.Getpid()))

			resp, err := http.Get(w.URL().String())
			Expect(err).NotTo(HaveOccurred())
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(string(body)).To(Equal(fmt.Sprintf("worker-%d", w.ID())))
			Expect(resp.Header.Get("X-Inherited-Listener")).To(Equal("true"))
		}

		Expect(p.Shutdown(context.Background())).To(Succeed())
		for _, w := range workers {
			Expect(w.Process().Done()).To(BeClosed())
		}
	})

	It("should stop the child when the launch context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		proc, err := launcher.Launch(ctx, pool.Spec{ID: 0, Port: freeBasePort(1)})
		Expect(err).NotTo(HaveOccurred())

		cancel()
		Eventually(proc.Done(), 5*time.Second).Should(BeClosed())
		Expect(proc.Stop(context.Background())).To(Succeed())
	})

	It("should keep the child running after the launching thread exits", func() {
		port := freeBasePort(1)

		type launched struct {
			proc interface {
				Done() <-chan struct{}
				Stop(context.Context) error
			}
			err error
		}
		result := make(chan launched, 1)
		go func() {
			// Exiting while locked ends this goroutine's OS thread.
			runtime.LockOSThread()
			proc, err := launcher.Launch(context.Background(), pool.Spec{ID: 5, Port: port})
			result <- launched{proc, err}
		}()

		var l launched
		Eventually(result).Should(Receive(&l))
		Expect(l.err).NotTo(HaveOccurred())
		defer l.proc.Stop(context.Background())

		Eventually(func() error {
			resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port))
			if err == nil {
				resp.Body.Close()
			}
			return err
		}, 5*time.Second).Should(Succeed())
		Consistently(l.proc.Done(), 500*time.Millisecond).ShouldNot(BeClosed())
	})

	It("should serve on the listener it was handed", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().(*net.TCPAddr)

		proc, err := launcher.Launch(context.Background(), pool.Spec{ID: 4, Port: addr.Port, Listener: ln})
		Expect(err).NotTo(HaveOccurred())
		defer proc.Stop(context.Background())

		resp, err := http.Get("http://" + addr.String())
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(string(body)).To(Equal("worker-4"))
		Expect(resp.Header.Get("X-Inherited-Listener")).To(Equal("true"))
	})

	It("should report a binary that cannot be started and release its listener", func() {
		launcher.Path = "/nonexistent/worker-binary"

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()

		_, err = launcher.Launch(context.Background(), pool.Spec{ID: 0, Port: 1, Listener: ln})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("/nonexistent/worker-binary"))

		again, err := net.Listen("tcp", addr)
		Expect(err).NotTo(HaveOccurred())
		again.Close()
	})
})
