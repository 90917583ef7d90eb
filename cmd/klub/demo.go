package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/internal/fakeklub"
	"klub/pkg/config"
	"klub/pkg/models"
)

const (
	demoToken     = "demo-token"
	demoSecret    = "demo-secret"
	demoCommunity = "demo"
	demoPaid      = "demo-paid"
	demoCourse    = "course_go"
)

// demoBackend is an in-memory klub API on a loopback port.
type demoBackend struct {
	api    *fakeklub.Server
	server *http.Server
}

// startDemo seeds an in-memory backend and points cfg at it.
func startDemo(cfg *config.Config) (*demoBackend, error) {
	user := models.Author{ID: "demo-user", Name: "Demo User"}
	srv := fakeklub.New(demoToken, demoSecret, user)
	if err := seedDemo(srv.Store); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	d := &demoBackend{
		api: srv,
		server: &http.Server{
			Handler:           srv.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[demo] server stopped: %v", err)
		}
	}()

	cfg.APIURL = fmt.Sprintf("http://%s", ln.Addr())
	cfg.APIToken = demoToken
	if cfg.CommunityID == "" {
		cfg.CommunityID = demoCommunity
	}
	cfg.Profile.ID = user.ID
	cfg.Profile.Name = user.Name
	if cfg.Profile.Email == "" {
		cfg.Profile.Email = "demo@klub.local"
	}
	cfg.Gateway.Key = "rzp_test_demo"
	cfg.Kafka.Addr = ""

	log.Infof("[demo] in-memory backend listening on %s", cfg.APIURL)
	return d, nil
}

func seedDemo(st *fakeklub.Store) error {
	st.AddCommunity(models.Community{ID: demoCommunity, Name: "Gophers"})
	st.AddCommunity(models.Community{ID: demoPaid, Name: "Gophers Pro", IsPaid: true, Price: 19900, Currency: "INR", PlanID: "plan_demo"})
	st.AddCourse(fakeklub.Course{ID: demoCourse, CommunityID: demoCommunity, Price: 49900})

	general, err := st.CreateWorkspace(demoCommunity, models.WorkspaceInput{Name: "General"})
	if err != nil {
		return err
	}
	if _, err := st.CreateWorkspace(demoCommunity, models.WorkspaceInput{Name: "Announcements"}); err != nil {
		return err
	}

	author := models.Author{ID: "u_gopher", Name: "Gopher"}
	for _, content := range []string{
		"Welcome to the Gophers community!",
		"Share what you are building this week.",
	} {
		if _, err := st.CreatePost(demoCommunity, general.ID, author, models.PostInput{Content: content}); err != nil {
			return err
		}
	}
	return nil
}

func (d *demoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.server.Shutdown(ctx)
}
