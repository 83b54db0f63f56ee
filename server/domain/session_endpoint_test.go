package domain_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	appdomain "carekeeper/application/domain"
	domain "carekeeper/server/domain"
	"carekeeper/server/domain/mocks"
)

// 依存が欠けている場合は初期化に失敗することを確認
func TestNewSessionEndpoint_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	tr := mocks.NewMockTransport(ctrl)
	c := domain.NewConnection(s.ID(), tr)

	_, err := domain.NewSessionEndpoint(context.Background(), s, c, nil, nil, domain.EndpointConfig{})
	if !errors.Is(err, domain.ErrInitializationFailed) {
		t.Fatalf("expected ErrInitializationFailed, got %v", err)
	}
}

func TestSessionEndpoint_LoginSuccess(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	if got := ann.endpoint.Session().State(); got != domain.StateActive {
		t.Fatalf("state = %v, want active", got)
	}
	if ann.endpoint.Session().Username() != "Ann" {
		t.Fatalf("username = %q", ann.endpoint.Session().Username())
	}
	if !h.aquarium.HasUser(h.ctx, "Ann") {
		t.Fatalf("Ann should be in the aquarium")
	}
	status := ann.waitStatus()
	if !strings.Contains(status, "Users Online: 1") || !strings.HasSuffix(status, domain.MarkerStatusUpdateEnd) {
		t.Fatalf("unexpected status push:\n%s", status)
	}
}

func TestSessionEndpoint_LoginFailureReprompts(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect()

	for _, bad := range []string{"", "   ", "ann!", strings.Repeat("a", appdomain.MaxNameLength+1)} {
		c.send(bad)
		reply := c.nextReply()
		if !strings.HasPrefix(reply, domain.MarkerLoginFail+"\n") {
			t.Fatalf("login %q: reply = %q, want LOGIN:FAIL", bad, reply)
		}
		if c.endpoint.Session().State() != domain.StateAwaitingLogin {
			t.Fatalf("login %q: state changed to %v", bad, c.endpoint.Session().State())
		}
	}
	c.send("Ann")
	c.expectReply(domain.MarkerLoginSuccessful + "\nLogin successful! Welcome, Ann.")
}

func TestSessionEndpoint_DuplicateLoginRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.login("Ann")

	other := h.connect()
	other.send("Ann")
	other.expectReply(domain.MarkerLoginFail + "\n" + domain.MsgUsernameTaken)
}

func TestSessionEndpoint_ConcurrentLoginExactlyOneSucceeds(t *testing.T) {
	h := newHarness(t, nil)
	const n = 8
	clients := make([]*client, n)
	for i := range clients {
		clients[i] = h.connect()
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Go(func() { c.tr.in <- "Ann" })
	}
	wg.Wait()

	successes := 0
	for _, c := range clients {
		reply := c.nextReply()
		switch {
		case strings.HasPrefix(reply, domain.MarkerLoginSuccessful):
			successes++
		case reply == domain.MarkerLoginFail+"\n"+domain.MsgUsernameTaken:
		default:
			t.Fatalf("unexpected reply %q", reply)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
	if h.aquarium.UserCount(h.ctx) != 1 || h.registry.Count() != 1 {
		t.Fatalf("expected one registered user")
	}
}

func TestSessionEndpoint_UnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.send("dance")
	ann.expectReply(domain.MsgUnknownCommand)
	if ann.endpoint.Session().State() != domain.StateActive {
		t.Fatalf("unknown command changed state")
	}
}

func TestSessionEndpoint_CommandsAreCaseInsensitive(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.send("  ADD-Fish ")
	if reply := ann.nextReply(); !strings.HasPrefix(reply, "Added ") {
		t.Fatalf("add-fish reply = %q", reply)
	}
	ann.send("View-Fish")
	reply := ann.nextReply()
	if !strings.HasPrefix(reply, "Your fish (1/9):\n- ") {
		t.Fatalf("view-fish reply = %q", reply)
	}
}

func TestSessionEndpoint_FeedCleanAndViewTank(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.send("feed-fish")
	ann.expectReply("You have no living fish to feed.")

	ann.send("add-fish")
	ann.nextReply()
	h.aquarium.RunSimulationStep(h.ctx)
	ann.send("feed-fish")
	ann.expectReply("Fed 1 fish. They are back to full health!")

	ann.send("clean-tank")
	ann.expectReply("Tank cleaned! Cleanliness is now 100.00%.")

	ann.send("view-tank")
	reply := ann.nextReply()
	for _, want := range []string{"Tank Cleanliness: 100.00%", "Users Online: 1", "Living Fish (1/9):"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("view-tank missing %q:\n%s", want, reply)
		}
	}
}

func TestSessionEndpoint_AddFishAtCapacity(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	for range appdomain.MaxFish {
		ann.send("add-fish")
		if reply := ann.nextReply(); !strings.HasPrefix(reply, "Added ") {
			t.Fatalf("add-fish reply = %q", reply)
		}
	}
	ann.send("add-fish")
	ann.expectReply("Your tank is full! You can own at most 9 fish.")
}

func TestSessionEndpoint_RemoveFishWithoutFish(t *testing.T) {
	h := newHarness(t, nil)
	bob := h.login("Bob")

	bob.send("remove-fish")
	bob.expectReply(domain.MarkerFishListEmpty)
	if bob.endpoint.Session().State() != domain.StateActive {
		t.Fatalf("state = %v, want active", bob.endpoint.Session().State())
	}

	// 次の行は選択ではなくコマンドとして扱われる
	bob.send("view-fish")
	bob.expectReply("You have no fish. Use add-fish to get one!")
}

func TestSessionEndpoint_RemoveFish(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.send("add-fish")
	ann.nextReply()
	snap, _ := h.aquarium.GetUser(h.ctx, "Ann")
	name := snap.Fish[0].Name()

	ann.send("remove-fish")
	ann.expectReply(strings.Join([]string{domain.MarkerFishListStart, name, domain.MarkerFishListEnd}, "\n"))
	if ann.endpoint.Session().State() != domain.StateAwaitingSubdialog {
		t.Fatalf("state = %v, want awaiting_subdialog", ann.endpoint.Session().State())
	}

	ann.send(name)
	ann.expectReply("Removed " + name + " from your tank.")
	if ann.endpoint.Session().State() != domain.StateActive {
		t.Fatalf("state = %v, want active", ann.endpoint.Session().State())
	}
	snap, _ = h.aquarium.GetUser(h.ctx, "Ann")
	if len(snap.Fish) != 0 {
		t.Fatalf("fish not removed: %d left", len(snap.Fish))
	}
}

func TestSessionEndpoint_RemoveFishUnknownName(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")
	ann.send("add-fish")
	ann.nextReply()

	ann.send("remove-fish")
	ann.nextReply()
	ann.send("Nobody")
	ann.expectReply("No fish with that name was found in your tank.")
	if ann.endpoint.Session().State() != domain.StateActive {
		t.Fatalf("state = %v, want active", ann.endpoint.Session().State())
	}
}

func TestSessionEndpoint_RemoveFishCancel(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")
	ann.send("add-fish")
	ann.nextReply()

	ann.send("remove-fish")
	ann.nextReply()
	ann.send("!CANCEL")
	ann.expectReply(domain.MsgCancelled)

	snap, _ := h.aquarium.GetUser(h.ctx, "Ann")
	if len(snap.Fish) != 1 {
		t.Fatalf("cancel changed fish count to %d", len(snap.Fish))
	}
}

func TestSessionEndpoint_PushesHeldDuringSubdialog(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")
	ann.waitStatus()

	ann.send("add-fish")
	ann.nextReply()
	ann.waitStatus()

	ann.send("remove-fish")
	if reply := ann.nextReply(); !strings.HasPrefix(reply, domain.MarkerFishListStart) {
		t.Fatalf("expected fish list, got %q", reply)
	}

	// 別セッションの変更がプッシュされるが、サブダイアログ中は保留される
	h.login("Bob")
	eventually(t, func() bool { return ann.endpoint.PendingPushes() > 0 }, "push held for Ann")
	ann.expectNoFrame(50 * time.Millisecond)

	ann.send(domain.CancelToken)
	if got := ann.next(); got != domain.MsgCancelled {
		t.Fatalf("first frame after selection = %q, want cancel reply", got)
	}
	status := ann.next()
	if !isStatus(status) || !strings.Contains(status, "Users Online: 2") {
		t.Fatalf("expected flushed status push, got %q", status)
	}
	if ann.endpoint.PendingPushes() != 0 {
		t.Fatalf("held pushes not flushed")
	}
}

func TestSessionEndpoint_GetFishFact(t *testing.T) {
	h := newHarness(t, stubFacts{fact: "Some sharks glow in the dark."})
	ann := h.login("Ann")

	ann.send("get-fish-fact")
	ann.expectReply("Fish fact: Some sharks glow in the dark.")
}

func TestSessionEndpoint_GetFishFactFailureKeepsSession(t *testing.T) {
	h := newHarness(t, stubFacts{err: errors.New("upstream down")})
	ann := h.login("Ann")

	ann.send("get-fish-fact")
	ann.expectReply("The fish fact service is unavailable right now. Please try again later.")
	ann.send("view-fish")
	ann.expectReply("You have no fish. Use add-fish to get one!")
}

func TestSessionEndpoint_Quit(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.send("exit")
	ann.expectReply("Goodbye, Ann!")
	ann.waitDone()

	if h.aquarium.HasUser(h.ctx, "Ann") || h.registry.IsRegistered("Ann") {
		t.Fatalf("Ann should be removed after quit")
	}
	if h.pubsub.Subscribers(domain.SessionTopic("Ann")) != 0 {
		t.Fatalf("subscription leaked")
	}
	if ann.endpoint.Session().State() != domain.StateTerminated {
		t.Fatalf("state = %v, want terminated", ann.endpoint.Session().State())
	}

	// 同じ名前で再ログインできる
	h.login("Ann")
}

func TestSessionEndpoint_DisconnectMidSubdialogCleansUp(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")
	ann.send("add-fish")
	ann.nextReply()
	ann.send("remove-fish")
	ann.nextReply()

	close(ann.tr.in)
	ann.waitDone()

	if h.aquarium.HasUser(h.ctx, "Ann") {
		t.Fatalf("Ann should be removed after disconnect")
	}
	if h.registry.Count() != 0 {
		t.Fatalf("registry still holds %d sessions", h.registry.Count())
	}
}

func TestSessionEndpoint_DisconnectBeforeLogin(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect()
	close(c.tr.in)
	c.waitDone()
	if c.endpoint.Session().State() != domain.StateTerminated {
		t.Fatalf("state = %v, want terminated", c.endpoint.Session().State())
	}
}

func TestSessionEndpoint_ForceClose(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")

	ann.endpoint.ForceClose()
	ann.waitDone()
	if h.aquarium.HasUser(h.ctx, "Ann") {
		t.Fatalf("Ann should be removed after force close")
	}
}

func TestSessionEndpoint_TickBroadcastsToEverySession(t *testing.T) {
	h := newHarness(t, nil)
	ann := h.login("Ann")
	bob := h.login("Bob")
	ann.waitStatus()
	ann.waitStatus()
	bob.waitStatus()

	h.aquarium.RunSimulationStep(h.ctx)

	for _, c := range []*client{ann, bob} {
		status := c.waitStatus()
		if !strings.Contains(status, "Tank Cleanliness: 99.00%") {
			t.Fatalf("tick push missing cleanliness:\n%s", status)
		}
	}
}

func TestSessionEndpoint_IdleTimeoutLogsOut(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connectWith(domain.EndpointConfig{IdleTimeout: 100 * time.Millisecond})
	c.send("Ann")
	c.expectReply(domain.MarkerLoginSuccessful + "\nLogin successful! Welcome, Ann.")

	c.waitDone()
	if h.aquarium.HasUser(h.ctx, "Ann") || h.registry.IsRegistered("Ann") {
		t.Fatalf("idle session should be logged out")
	}
}

func TestSessionEndpoint_NameReuseDropsStalePushes(t *testing.T) {
	h := newPausedHarness(t, nil)

	old := h.login("Ann")
	old.send("add-fish")
	if got := old.nextReply(); !strings.HasPrefix(got, "Added ") {
		t.Fatalf("add-fish reply = %q", got)
	}
	old.send("quit")
	old.waitDone()

	// 前の Ann の join と add-fish がキューに残ったまま同名で参加する
	ann := h.login("Ann")
	h.startNotifier()

	status := ann.waitStatus()
	if !strings.Contains(status, "Living Fish (0/") {
		t.Fatalf("status should describe the new Ann:\n%s", status)
	}
	ann.expectNoFrame(100 * time.Millisecond)
}

func TestSessionEndpoint_QuitClosesStalledWriter(t *testing.T) {
	h := newHarness(t, nil)
	tr := &stallingTransport{pipeTransport: newPipeTransport()}
	session := domain.NewSession()
	ep, err := domain.NewSessionEndpoint(h.ctx, session, domain.NewConnection(session.ID(), tr), h.registry, h.service,
		domain.EndpointConfig{CloseGrace: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSessionEndpoint returned error: %v", err)
	}
	c := &client{t: t, tr: tr.pipeTransport, endpoint: ep, done: make(chan error, 1)}
	go func() { c.done <- ep.Run() }()
	c.expectReply(domain.MsgWelcome)
	c.send("Ann")
	c.expectReply(domain.MarkerLoginSuccessful + "\nLogin successful! Welcome, Ann.")

	// 相手が読まなくなっても quit 後は猶予を過ぎたら接続を閉じる
	tr.stalled.Store(true)
	c.send("quit")
	c.waitDone()

	if h.registry.IsRegistered("Ann") {
		t.Fatalf("Ann should be unregistered after quit")
	}
	select {
	case <-tr.closed:
	default:
		t.Fatalf("transport should be closed")
	}
}
