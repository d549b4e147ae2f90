package admin

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/protocol"
)

type reply struct {
	Code   int
	Msg    string
	Result json.RawMessage
}

func call(t *testing.T, s *Server, query string) reply {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/admin?"+query, nil))
	var r reply
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("%s: bad reply %q: %v", query, rec.Body.String(), err)
	}
	return r
}

func TestOutcomeCommands(t *testing.T) {
	db, err := journal.OpenLevelDBStorage(storage.NewMemStorage())
	if err != nil {
		t.Fatalf("OpenLevelDBStorage: %v", err)
	}
	defer db.Close()
	for seq := uint64(1); seq <= 3; seq++ {
		db.Record(journal.Outcome{
			Id:    protocol.MessageId{TransportId: 5, Sequence: seq},
			State: "COMPLETED",
			At:    time.Unix(1600000000, 0),
		})
	}
	s := New(db)

	r := call(t, s, "cmd=outcomes&transport=5&limit=2")
	if r.Code != 200 {
		t.Fatalf("outcomes: %+v", r)
	}
	var views []outcomeView
	if err := json.Unmarshal(r.Result, &views); err != nil {
		t.Fatalf("outcomes result: %v", err)
	}
	if len(views) != 2 || views[0].Id != "5:1" || views[1].Id != "5:2" {
		t.Fatalf("unexpected outcomes %+v", views)
	}

	r = call(t, s, "cmd=outcome&id=5:3")
	var view outcomeView
	if err := json.Unmarshal(r.Result, &view); err != nil || view.State != "COMPLETED" {
		t.Fatalf("outcome: %+v %v", r, err)
	}
	if r = call(t, s, "cmd=outcome&id=5:9"); r.Code != 201 {
		t.Fatalf("missing outcome answered %+v", r)
	}
	if r = call(t, s, "cmd=outcome&id=garbage"); r.Code != 201 {
		t.Fatalf("bad id answered %+v", r)
	}
}

func TestUnknownCommandAndLevels(t *testing.T) {
	s := New(nil)
	if r := call(t, s, "cmd=reboot"); r.Code != 404 {
		t.Fatalf("unknown command answered %+v", r)
	}
	if r := call(t, s, "cmd=outcomes"); r.Code != 201 {
		t.Fatalf("outcomes without a journal answered %+v", r)
	}
	if r := call(t, s, "cmd=setloglevel&level=nonsense"); r.Code != 201 {
		t.Fatalf("bad level answered %+v", r)
	}
	if r := call(t, s, "cmd=setloglevel&level=debug"); r.Code != 200 {
		t.Fatalf("setloglevel answered %+v", r)
	}
	call(t, s, "cmd=setloglevel&level=info")
	if r := call(t, s, "cmd=active"); r.Code != 200 {
		t.Fatalf("active answered %+v", r)
	}
}
