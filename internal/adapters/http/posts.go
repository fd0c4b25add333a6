package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/whep-player/internal/app/posts"
	"github.com/dkeye/whep-player/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const postsNextKey = "posts_next"

type postHandlers struct {
	catalog *posts.Catalog
}

type pageView struct {
	Page  int           `json:"page"`
	Cards []domain.Card `json:"cards"`
	More  bool          `json:"more"`
}

func loadPageState(c *gin.Context) posts.PageState {
	next, _ := sessions.Default(c).Get(postsNextKey).(int)
	return posts.PageState{Next: next}
}

func savePageState(c *gin.Context, st posts.PageState) {
	s := sessions.Default(c)
	s.Set(postsNextKey, st.Next)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("saving posts state")
	}
}

func (h *postHandlers) more(page int) bool {
	return (page+1)*h.catalog.PageSize() < h.catalog.Len()
}

// next serves the caller's next page and advances its position.
func (h *postHandlers) next(c *gin.Context) {
	st := loadPageState(c)
	page, advanced := h.catalog.NextPage(st)
	savePageState(c, advanced)
	c.JSON(http.StatusOK, pageView{Page: st.Next, Cards: posts.Cards(page), More: h.more(st.Next)})
}

func (h *postHandlers) page(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	c.JSON(http.StatusOK, pageView{Page: n, Cards: posts.Cards(h.catalog.Page(n)), More: h.more(n)})
}

func (h *postHandlers) search(c *gin.Context) {
	q := c.Query("q")
	found, st := h.catalog.Search(q, loadPageState(c))
	savePageState(c, st)
	c.JSON(http.StatusOK, gin.H{"query": q, "cards": posts.Cards(found)})
}
