package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// 进程内的接口基准测试，并发度由 -cpu 控制

func BenchmarkOccupancy(b *testing.B) {
	app := newTestApp(b)
	token := app.login(b, "gate1")
	path := fmt.Sprintf("/api/occupancy/%d", app.site.ID)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				b.Errorf("status %d", w.Code)
			}
		}
	})
}

func BenchmarkEntryCreateExit(b *testing.B) {
	app := newTestApp(b)
	token := app.login(b, "gate1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, env := app.do(b, http.MethodPost, "/api/entries", token, gin.H{
			"site_id": app.site.ID,
			"type":    "visitor",
			"data":    gin.H{"name": fmt.Sprintf("visitor-%d", i)},
		})
		var entry struct {
			ID uint `json:"id"`
		}
		if err := json.Unmarshal(env.Data, &entry); err != nil {
			b.Fatal(err)
		}
		w, _ := app.do(b, http.MethodPost, "/api/entries/exit", token, gin.H{"entry_id": entry.ID})
		if w.Code != http.StatusOK {
			b.Fatalf("exit status %d", w.Code)
		}
	}
}
