package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/adapter/coachpresenter"
	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess"
	"github.com/park285/chess-coach/internal/narration"
	"github.com/park285/chess-coach/internal/render"
	"github.com/park285/chess-coach/internal/service/coach"
	"github.com/park285/chess-coach/internal/store"
)

// repl is the interactive command loop over one board session.
type repl struct {
	svc       *coach.Service
	narrator  narration.Narrator
	store     *store.SessionStore
	pres      *coachpresenter.Presenter
	formatter *coachpresenter.Formatter
	logger    *zap.Logger

	sess      *board.Session
	sessionID string
}

// run reads commands until quit, EOF or ctx is done.
func (r *repl) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.pres.Say("repl.banner", nil)
	r.pres.Println("")
	defer r.pres.Say("repl.goodbye", nil)
	for {
		r.pres.Prompt()
		var line string
		select {
		case <-ctx.Done():
			r.pres.Println("")
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}
		if !r.dispatch(ctx, line) {
			return
		}
	}
}

// dispatch runs one command line and reports whether the loop continues.
func (r *repl) dispatch(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	command, arg, _ := strings.Cut(line, " ")
	command = strings.ToLower(command)
	arg = strings.TrimSpace(arg)

	switch command {
	case "quit", "exit":
		return false
	case "help":
		r.pres.Say("repl.help", struct{ Preset, Presets string }{r.svc.Preset().Name, strings.Join(chess.PresetNames(), ", ")})
	case "fen":
		r.loadFEN(arg)
	case "board":
		r.board(ctx, arg)
	case "legal":
		r.pres.Say("repl.legal_moves", struct{ Legal string }{strings.Join(r.sess.Position().LegalMovesSAN(), ", ")})
	case "analyze":
		r.analyze(ctx)
	case "move":
		r.compare(ctx, arg)
	case "play":
		r.play(arg)
	case "undo":
		r.undo()
	case "ask":
		r.ask(ctx, arg)
	case "save":
		r.save(ctx)
	case "resume":
		r.resume(ctx, arg)
	case "sessions":
		r.sessions(ctx)
	case "forget":
		r.forget(ctx, arg)
	case "history":
		r.history(ctx, arg)
	default:
		r.pres.Say("repl.unknown", struct{ Command string }{command})
	}
	return true
}

func (r *repl) loadFEN(record string) {
	if err := r.sess.Reload(record); err != nil {
		r.pres.Say("repl.invalid_fen", struct{ Err string }{err.Error()})
		return
	}
	r.sessionID = ""
	pos := r.sess.Position()
	r.pres.Say("repl.loaded", struct{ Turn string }{board.ColorName(pos.Turn())})
	r.pres.Board(pos, false)
}

func (r *repl) board(ctx context.Context, arg string) {
	pos := r.sess.Position()
	sub, path, _ := strings.Cut(arg, " ")
	if !strings.EqualFold(sub, "png") {
		r.pres.Board(pos, true)
		return
	}
	path = strings.TrimSpace(path)
	if path == "" {
		r.pres.Say("repl.png_usage", nil)
		return
	}
	opts := render.Options{FromBlack: pos.Turn() == nchess.Black}
	if moves := r.sess.Moves(); len(moves) > 0 {
		last := moves[len(moves)-1]
		opts.LastMove = &last
	}
	raw, err := render.RenderPNG(ctx, pos, opts)
	if err == nil {
		err = os.WriteFile(path, raw, 0o644)
	}
	if err != nil {
		r.logger.Warn("board_png_failed", zap.String("path", path), zap.Error(err))
		r.pres.Println("Could not write image: " + err.Error())
		return
	}
	r.pres.Say("repl.png_written", struct{ Path string }{path})
}

func (r *repl) analyze(ctx context.Context) {
	r.pres.Say("repl.analyzing", nil)
	facts, err := r.svc.AnalyzePosition(ctx, r.sess)
	if err != nil {
		r.engineError(err)
		return
	}
	r.pres.Println(r.formatter.Position(facts))
	text, err := r.narrator.NarratePosition(ctx, facts)
	r.narration(text, err)
}

func (r *repl) compare(ctx context.Context, input string) {
	pos := r.sess.Position()
	m, ok := board.Resolve(pos, input)
	if !ok {
		r.illegal(input, true)
		return
	}
	r.pres.Say("repl.evaluating", struct{ Move string }{pos.SAN(m)})
	facts, err := r.svc.CompareMove(ctx, r.sess, input)
	if err != nil {
		var nr *coach.MoveNotResolvedError
		if errors.As(err, &nr) {
			r.illegal(input, true)
			return
		}
		r.engineError(err)
		return
	}
	r.pres.Println(r.formatter.Comparison(facts))
	text, err := r.narrator.NarrateComparison(ctx, facts)
	r.narration(text, err)
}

func (r *repl) play(input string) {
	m, ok := board.Resolve(r.sess.Position(), input)
	if !ok {
		r.illegal(input, false)
		return
	}
	label, err := r.sess.Apply(m)
	if err != nil {
		r.illegal(input, false)
		return
	}
	pos := r.sess.Position()
	r.pres.Say("repl.played", struct{ Move, Turn string }{label, board.ColorName(pos.Turn())})
	r.pres.Board(pos, false)
}

func (r *repl) undo() {
	label, ok := r.sess.Undo()
	if !ok {
		r.pres.Say("repl.nothing_to_undo", nil)
		return
	}
	pos := r.sess.Position()
	r.pres.Say("repl.undone", struct{ Move, Turn string }{label, board.ColorName(pos.Turn())})
	r.pres.Board(pos, false)
}

func (r *repl) ask(ctx context.Context, question string) {
	if question == "" {
		r.pres.Say("repl.ask_usage", nil)
		return
	}
	text, err := r.narrator.Ask(ctx, question)
	r.narration(text, err)
}

func (r *repl) save(ctx context.Context) {
	if r.store == nil {
		r.pres.Say("repl.store_disabled", nil)
		return
	}
	id, err := r.store.Save(ctx, r.sessionID, r.sess)
	if err != nil {
		r.logger.Warn("session_save_failed", zap.Error(err))
		r.pres.Println(err.Error())
		return
	}
	r.sessionID = id
	r.pres.Say("repl.saved", struct{ ID string }{id})
}

func (r *repl) resume(ctx context.Context, id string) {
	if r.store == nil {
		r.pres.Say("repl.store_disabled", nil)
		return
	}
	if id == "" {
		r.pres.Say("repl.resume_usage", nil)
		return
	}
	sess, rec, err := r.store.Load(ctx, id)
	if err != nil {
		r.pres.Println(err.Error())
		return
	}
	r.sess = sess
	r.sessionID = rec.ID
	pos := sess.Position()
	r.pres.Say("repl.resumed", struct{ ID, Turn string }{rec.ID, board.ColorName(pos.Turn())})
	r.pres.Board(pos, false)
}

func (r *repl) sessions(ctx context.Context) {
	if r.store == nil {
		r.pres.Say("repl.store_disabled", nil)
		return
	}
	recs, err := r.store.Recent(ctx, 10)
	if err != nil {
		r.pres.Println(err.Error())
		return
	}
	r.pres.Println(r.formatter.Sessions(recs))
}

func (r *repl) forget(ctx context.Context, id string) {
	if r.store == nil {
		r.pres.Say("repl.store_disabled", nil)
		return
	}
	if id == "" {
		r.pres.Say("repl.forget_usage", nil)
		return
	}
	if err := r.store.Delete(ctx, id); err != nil {
		r.pres.Println(err.Error())
		return
	}
	if r.sessionID == id {
		r.sessionID = ""
	}
	r.pres.Say("repl.forgotten", struct{ ID string }{id})
}

// history lists stored analyses of the current position, or shows one by id.
func (r *repl) history(ctx context.Context, id string) {
	if id != "" {
		rec, err := r.svc.Analysis(ctx, id)
		if err != nil {
			r.pres.Println(err.Error())
			return
		}
		text, err := r.formatter.Record(rec)
		if err != nil {
			r.pres.Println(err.Error())
			return
		}
		r.pres.Println(text)
		return
	}
	recs, err := r.svc.Recent(ctx, r.sess.Position().FEN(), 10)
	if err != nil {
		r.pres.Println(err.Error())
		return
	}
	r.pres.Println(r.formatter.Analyses(recs))
}

func (r *repl) illegal(input string, listLegal bool) {
	r.pres.Say("repl.illegal_move", struct{ Move string }{input})
	if listLegal {
		r.pres.Say("repl.legal_moves", struct{ Legal string }{strings.Join(r.sess.Position().LegalMovesSAN(), ", ")})
	}
}

func (r *repl) engineError(err error) {
	r.logger.Warn("engine_request_failed", zap.Error(err))
	if errors.Is(err, chess.ErrEngineUnavailable) {
		r.pres.Say("repl.engine_restart", nil)
		return
	}
	r.pres.Say("repl.engine_error", struct{ Err string }{err.Error()})
}

func (r *repl) narration(text string, err error) {
	if err != nil {
		r.logger.Warn("narration_failed", zap.Error(err))
		r.pres.Block(narration.UserMessage(err))
		return
	}
	r.pres.Block(text)
}
