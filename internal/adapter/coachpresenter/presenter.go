package coachpresenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/msgcat"
)

// Presenter writes catalog messages and boards to the terminal without
// coupling the command loop to output formatting.
type Presenter struct {
	out io.Writer
	cat *msgcat.Catalog
}

func NewPresenter(out io.Writer, cat *msgcat.Catalog) *Presenter {
	return &Presenter{out: out, cat: cat}
}

// Say renders the catalog entry key with data on its own line. A rendering
// failure prints the key so the loop never goes silent.
func (p *Presenter) Say(key string, data any) {
	text, err := p.cat.Render(key, data)
	if err != nil {
		text = key
	}
	p.Println(text)
}

func (p *Presenter) Println(text string) {
	fmt.Fprintln(p.out, text)
}

// Block prints text padded by blank lines, for narration output.
func (p *Presenter) Block(text string) {
	fmt.Fprintf(p.out, "\n%s\n\n", strings.TrimSpace(text))
}

func (p *Presenter) Prompt() {
	fmt.Fprint(p.out, p.cat.Text("repl.prompt", "> "))
}

// Board prints the diagram; withFooter adds the FEN and side to move.
func (p *Presenter) Board(pos *board.Position, withFooter bool) {
	p.Println(pos.Draw())
	if withFooter {
		p.Say("repl.board_footer", struct {
			FEN, Turn string
			Move      int
		}{pos.FEN(), board.ColorName(pos.Turn()), pos.FullmoveNumber()})
	}
}
