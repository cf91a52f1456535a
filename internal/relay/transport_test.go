package relay

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/excel-interviewer/internal/a2a"
	"github.com/ashureev/excel-interviewer/internal/agent"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

// echoRunner reports one tool notice and answers with the user's text.
type echoRunner struct {
	release chan struct{}
}

func (r echoRunner) Run(ctx context.Context, _, userID, text string, notify func(string)) (string, error) {
	notify("Calling tool: `start_interview`...")
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "echo " + userID + ": " + text, nil
}

func newAgentService(t *testing.T, runner agent.Runner) *agent.Service {
	t.Helper()
	svc := agent.NewService(runner, agent.NewTaskStore(), nil)
	t.Cleanup(svc.Close)
	return svc
}

func startJSONRPCAgent(t *testing.T, svc *agent.Service) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	agent.NewHandler(svc, agent.NewAgentCard(srv.URL+"/", "", "test"), 0).RegisterRoutes(r)
	return srv
}

func startGRPCAgent(t *testing.T, svc *agent.Service) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	a2a.RegisterAgentServiceServer(srv, agent.NewGRPCServer(svc))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func openClients(t *testing.T, runner agent.Runner) map[string]AgentClient {
	t.Helper()
	ctx := context.Background()

	jsonSrv := startJSONRPCAgent(t, newAgentService(t, runner))
	jsonClient, err := NewJSONRPCClient(ctx, jsonSrv.URL, jsonSrv.Client())
	if err != nil {
		t.Fatalf("NewJSONRPCClient() error = %v", err)
	}
	if jsonClient.Card().Name != "AI Excel Interviewer" {
		t.Fatalf("card = %+v", jsonClient.Card())
	}

	grpcClient, err := NewGRPCClient(DefaultGRPCClientConfig(startGRPCAgent(t, newAgentService(t, runner))), nil)
	if err != nil {
		t.Fatalf("NewGRPCClient() error = %v", err)
	}
	t.Cleanup(func() { _ = grpcClient.Close() })

	return map[string]AgentClient{"jsonrpc": jsonClient, "grpc": grpcClient}
}

func TestStreamOverTransports(t *testing.T) {
	for name, client := range openClients(t, echoRunner{}) {
		t.Run(name, func(t *testing.T) {
			p := NewPoller(10*time.Millisecond, 200, nil)
			var got []Event
			for ev := range p.Stream(context.Background(), client, "hello", "ctx-42", "u1") {
				got = append(got, ev)
			}
			last := got[len(got)-1]
			if last.Type != EventFinal || last.Content != "echo u1: hello" || last.ContextID != "ctx-42" {
				t.Fatalf("events = %+v", got)
			}
		})
	}
}

func TestTaskErrorsOverTransports(t *testing.T) {
	ctx := context.Background()
	for name, client := range openClients(t, echoRunner{}) {
		t.Run(name, func(t *testing.T) {
			if _, err := client.GetTask(ctx, "missing"); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Fatalf("GetTask(missing) error = %v, want ErrTaskNotFound", err)
			}

			task, err := client.SendMessage(ctx, *a2a.NewTextMessage(a2a.RoleUser, "   ", "ctx", ""))
			if err != nil {
				t.Fatalf("SendMessage() error = %v", err)
			}
			if task.Status.State != a2a.TaskStateRejected {
				t.Fatalf("state = %s, want rejected", task.Status.State)
			}
			if _, err := client.CancelTask(ctx, task.ID); !errors.Is(err, a2a.ErrTaskNotCancelable) {
				t.Fatalf("CancelTask(rejected) error = %v, want ErrTaskNotCancelable", err)
			}
		})
	}
}

func TestCancelOverTransports(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	for name, client := range openClients(t, echoRunner{release: release}) {
		t.Run(name, func(t *testing.T) {
			task, err := client.SendMessage(ctx, *a2a.NewTextMessage(a2a.RoleUser, "hi", "ctx", ""))
			if err != nil {
				t.Fatalf("SendMessage() error = %v", err)
			}
			canceled, err := client.CancelTask(ctx, task.ID)
			if err != nil {
				t.Fatalf("CancelTask() error = %v", err)
			}
			if canceled.Status.State != a2a.TaskStateCanceled || canceled.StatusText() != agent.CanceledText {
				t.Fatalf("task = %+v", canceled.Status)
			}
			got, err := client.GetTask(ctx, task.ID)
			if err != nil || got.Status.State != a2a.TaskStateCanceled {
				t.Fatalf("GetTask() = %+v, %v", got, err)
			}
		})
	}
}
