package resource_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/event"
	"github.com/opencode-ai/agentctx/internal/project"
	"github.com/opencode-ai/agentctx/internal/resource"
)

var _ = Describe("Service on the host filesystem", func() {
	var (
		workspace string
		bus       *event.Bus
		svc       *resource.Service
		ctx       context.Context
		docs      *agent.Config
	)

	write := func(rel, body string) string {
		path := filepath.Join(workspace, filepath.FromSlash(rel))
		Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(body), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		project.ClearCache()
		workspace = GinkgoT().TempDir()
		Expect(os.Mkdir(filepath.Join(workspace, ".amazonq"), 0755)).To(Succeed())
		write("README.md", "# readme")
		write("docs/intro.md", "intro")
		write("docs/guide/setup.md", "setup")

		bus = event.NewBus()
		svc = resource.NewService(
			project.NewResolver(filepath.Join(workspace, "docs")),
			resource.WithBus(bus),
			resource.WithLogger(zerolog.Nop()),
		)
		ctx = context.Background()
		docs = &agent.Config{
			Name:      "docs",
			Resources: []string{"file://docs/**/*.md", "file://README.md", "file://missing/*.md"},
		}
	})

	AfterEach(func() {
		Expect(svc.Close()).To(Succeed())
		Expect(bus.Close()).To(Succeed())
	})

	Describe("Resolve", func() {
		It("groups matches under one header per pattern", func() {
			list, err := svc.Resolve(ctx, docs)
			Expect(err).NotTo(HaveOccurred())

			headers := list.Headers()
			Expect(headers).To(HaveLen(3))
			Expect(headers[0].Label).To(Equal("README.md"))
			Expect(headers[1].Label).To(Equal("docs/**/*.md"))
			Expect(headers[1].Description).To(Equal("2 files"))
			Expect(headers[2].Label).To(Equal("missing/*.md"))
			Expect(headers[2].Description).To(Equal("0 files"))

			files := list.Files()
			Expect(files).To(HaveLen(3))
			Expect(files[1].Label).To(Equal("intro.md"))
			Expect(files[1].RelativePath).To(Equal("docs/intro.md"))
			Expect(files[2].Label).To(Equal("setup.md"))
		})

		It("resolves against the workspace root, not the starting directory", func() {
			list, err := svc.Resolve(ctx, &agent.Config{Name: "root", Resources: []string{"README.md"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Files()).To(HaveLen(1))
			Expect(list.Files()[0].AbsolutePath).To(Equal(filepath.Join(workspace, "README.md")))
		})

		It("serves repeated calls from the cache", func() {
			first, err := svc.Resolve(ctx, docs)
			Expect(err).NotTo(HaveOccurred())

			write("docs/later.md", "not seen until invalidated")

			second, err := svc.Resolve(ctx, docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
			Expect(svc.Stats().Hits).To(BeEquivalentTo(1))
		})
	})

	Describe("Watch", func() {
		It("invalidates the cache when a matching file is created", func() {
			invalidated := make(chan event.ResourcesInvalidatedData, 16)
			bus.Subscribe(event.ResourcesInvalidated, func(e event.Event) {
				invalidated <- e.Data.(event.ResourcesInvalidatedData)
			})

			_, err := svc.Resolve(ctx, docs)
			Expect(err).NotTo(HaveOccurred())

			handle, err := svc.Watch(docs)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(handle.Dispose)

			created := write("docs/guide/new.md", "fresh")

			var data event.ResourcesInvalidatedData
			Eventually(invalidated, 5*time.Second).Should(Receive(&data))
			Expect(data.Agent).To(Equal("docs"))
			Expect(data.Pattern).To(Equal("file://docs/**/*.md"))
			Expect(data.Path).To(Equal(created))

			list, err := svc.Resolve(ctx, docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Files()).To(ContainElement(HaveField("Label", "new.md")))
		})

		It("releases the previous agent's watches when another agent is watched", func() {
			_, err := svc.Watch(docs)
			Expect(err).NotTo(HaveOccurred())

			readme := &agent.Config{Name: "readme", Resources: []string{"README.md"}}
			handle, err := svc.Watch(readme)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(handle.Dispose)

			stats := svc.Stats()
			Expect(stats.ActiveWatches).To(Equal(1))
			Expect(stats.ActiveAgent).To(Equal("readme"))
		})
	})

	Describe("errors", func() {
		It("reports a missing workspace", func() {
			orphan := resource.NewService(project.NewResolver(""), resource.WithLogger(zerolog.Nop()))
			DeferCleanup(orphan.Close)

			_, err := orphan.Resolve(ctx, docs)
			Expect(err).To(MatchError(resource.ErrNoWorkspace))
			Expect(resource.Classify(err)).To(Equal(resource.ErrorKindValidation))
		})
	})
})
