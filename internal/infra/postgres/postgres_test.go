package postgres

import (
	"context"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/autograder/internal/core/grading"
	"github.com/jinford/autograder/pkg/db"
)

// testDB はdockertestで起動したPostgreSQLへの共有接続
// Dockerが利用できない環境ではnilのままで、各テストはスキップされる
var testDB *db.DB

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Printf("dockertest unavailable, skipping integration tests: %v", err)
		os.Exit(m.Run())
	}
	if err := pool.Client.Ping(); err != nil {
		log.Printf("docker daemon unavailable, skipping integration tests: %v", err)
		os.Exit(m.Run())
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=autograder",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=autograder_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("failed to start postgres container, skipping integration tests: %v", err)
		os.Exit(m.Run())
	}
	_ = resource.Expire(300)

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	if err != nil {
		log.Printf("failed to resolve container port: %v", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		database, err := db.New(ctx, db.ConnectionParams{
			Host:     "localhost",
			Port:     port,
			User:     "autograder",
			Password: "secret",
			DBName:   "autograder_test",
			SSLMode:  "disable",
		})
		if err != nil {
			return err
		}
		testDB = database
		return nil
	}); err != nil {
		log.Printf("failed to connect to postgres container: %v", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	if err := Migrate(context.Background(), testDB.Pool); err != nil {
		log.Printf("failed to migrate test database: %v", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = pool.Purge(resource)
	os.Exit(code)
}

// setupStore はテーブルを空にしたStoreを返します
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("Dockerが利用できないため統合テストをスキップします")
	}

	_, err := testDB.Pool.Exec(context.Background(),
		`TRUNCATE assignments, submissions, grades, grading_jobs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return NewStore(testDB.Pool)
}

// createTestSubmission は課題とqueuedサブミッションを1件作成します
func createTestSubmission(t *testing.T, store *Store) *grading.Submission {
	t.Helper()
	ctx := context.Background()

	assignment, err := store.CreateAssignment(ctx, "エッセイ課題",
		grading.Rubric(`{"thesis": {"max_points": 30}}`))
	require.NoError(t, err)

	submission, err := store.CreateSubmission(ctx, assignment.ID, "essay.txt", "key-1", "essay body")
	require.NoError(t, err)
	return submission
}

// TestStoreAssignments は課題のCRUDを確認します
func TestStoreAssignments(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created, err := store.CreateAssignment(ctx, "課題A",
		grading.Rubric(`{"quality": {"max_points": 100}}`))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := store.GetAssignment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "課題A", got.Title)
	assert.JSONEq(t, `{"quality": {"max_points": 100}}`, string(got.Rubric))

	_, err = store.GetAssignment(ctx, 9999)
	assert.ErrorIs(t, err, grading.ErrAssignmentNotFound)

	_, err = store.CreateAssignment(ctx, "課題B", grading.Rubric(`{"b": 1}`))
	require.NoError(t, err)

	assignments, err := store.ListAssignments(ctx)
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
}

// TestStoreCreateAssignmentInvalidRubric は不正ルーブリックの拒否を確認します
func TestStoreCreateAssignmentInvalidRubric(t *testing.T) {
	store := setupStore(t)

	_, err := store.CreateAssignment(context.Background(), "bad", grading.Rubric(`[]`))
	assert.Error(t, err)
}

// TestStoreSubmissions はサブミッションの作成と状態遷移を確認します
func TestStoreSubmissions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	submission := createTestSubmission(t, store)

	// 作成直後はqueued
	assert.Equal(t, grading.StatusQueued, submission.Status)

	require.NoError(t, store.UpdateSubmissionStatus(ctx, submission.ID, grading.StatusGrading))
	got, err := store.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, grading.StatusGrading, got.Status)

	// 未定義の状態は拒否される
	assert.Error(t, store.UpdateSubmissionStatus(ctx, submission.ID, grading.Status("pending")))

	// 存在しないサブミッション
	assert.ErrorIs(t, store.UpdateSubmissionStatus(ctx, 9999, grading.StatusDone), grading.ErrSubmissionNotFound)
	_, err = store.GetSubmission(ctx, 9999)
	assert.ErrorIs(t, err, grading.ErrSubmissionNotFound)

	list, err := store.ListSubmissionsByAssignment(ctx, submission.AssignmentID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// TestStoreUpsertGrade は採点結果の保存と上書きを確認します
func TestStoreUpsertGrade(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	submission := createTestSubmission(t, store)

	first, err := store.UpsertGrade(ctx, submission.ID, &grading.StructuredGrade{
		Score: 72,
		Breakdown: map[string]grading.CriterionScore{
			"thesis": {Points: 22, MaxPoints: 30, Comment: "ok"},
		},
		Feedback:  "良い提出です",
		Citations: []grading.Citation{{ReferenceID: 1, Text: "cited", Relevance: "supports"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 72, first.Score)

	// 再採点は同一レコードを上書きする（サブミッションと1:1）
	second, err := store.UpsertGrade(ctx, submission.ID, &grading.StructuredGrade{
		Score:     90,
		Breakdown: map[string]grading.CriterionScore{"thesis": {Points: 30, MaxPoints: 30}},
		Feedback:  "再採点",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 90, second.Score)
	// nilのcitationsは空配列として保存される
	assert.NotNil(t, second.Citations)
	assert.Empty(t, second.Citations)

	got, err := store.GetGradeBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, got.Score)
	assert.Equal(t, "再採点", got.Feedback)

	_, err = store.GetGradeBySubmission(ctx, 9999)
	assert.ErrorIs(t, err, grading.ErrGradeNotFound)
}

// TestJobQueue はジョブのエンキュー・デキュー・確定を確認します
func TestJobQueue(t *testing.T) {
	store := setupStore(t)
	queue := NewJobQueue(testDB.Pool)
	ctx := context.Background()

	sub1 := createTestSubmission(t, store)
	sub2, err := store.CreateSubmission(ctx, sub1.AssignmentID, "second.txt", "key-2", "second body")
	require.NoError(t, err)

	require.NoError(t, queue.Enqueue(ctx, sub1.ID))
	require.NoError(t, queue.Enqueue(ctx, sub2.ID))

	// エンキュー順に取得される
	job1, ok, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sub1.ID, job1.SubmissionID)
	assert.Equal(t, 1, job1.Attempts)

	job2, ok, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sub2.ID, job2.SubmissionID)

	// 空キュー
	_, ok, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, queue.MarkDone(ctx, job1.ID))
	require.NoError(t, queue.MarkFailed(ctx, job2.ID, "grading failed"))

	var status, lastError string
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT status FROM grading_jobs WHERE id = $1`, job1.ID).Scan(&status))
	assert.Equal(t, "done", status)
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT status, last_error FROM grading_jobs WHERE id = $1`, job2.ID).Scan(&status, &lastError))
	assert.Equal(t, "failed", status)
	assert.Equal(t, "grading failed", lastError)
}

// TestJobQueueReclaimStale は放置されたサブミッションの回収を確認します
func TestJobQueueReclaimStale(t *testing.T) {
	store := setupStore(t)
	queue := NewJobQueue(testDB.Pool)
	ctx := context.Background()

	submission := createTestSubmission(t, store)
	require.NoError(t, queue.Enqueue(ctx, submission.ID))

	// ワーカーがジョブを取得して採点中にクラッシュした状況を再現する
	job, ok, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.UpdateSubmissionStatus(ctx, submission.ID, grading.StatusGrading))

	_, err = testDB.Pool.Exec(ctx,
		`UPDATE grading_jobs SET started_at = now() - interval '1 hour' WHERE id = $1`, job.ID)
	require.NoError(t, err)

	reclaimed, err := queue.ReclaimStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	// サブミッションはqueuedへ戻る
	got, err := store.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, grading.StatusQueued, got.Status)

	// 古いジョブはfailedに確定し、新しいpendingジョブが積まれている
	var status string
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT status FROM grading_jobs WHERE id = $1`, job.ID).Scan(&status))
	assert.Equal(t, "failed", status)

	next, ok, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, submission.ID, next.SubmissionID)

	// 再実行しても回収対象はない（冪等）
	reclaimed, err = queue.ReclaimStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

// TestVectorIndex はベクトルインデックスの書き込み・検索・課題分離を確認します
func TestVectorIndex(t *testing.T) {
	if testDB == nil {
		t.Skip("Dockerが利用できないため統合テストをスキップします")
	}
	index := NewVectorIndex(testDB.Pool)
	ctx := context.Background()

	_, err := testDB.Pool.Exec(ctx, `DROP TABLE IF EXISTS reference_chunks`)
	require.NoError(t, err)

	require.NoError(t, index.EnsureSchema(ctx, 3))
	// 冪等
	require.NoError(t, index.EnsureSchema(ctx, 3))
	// 次元不一致は設定エラー
	assert.ErrorContains(t, index.EnsureSchema(ctx, 4), "dimension mismatch")

	// 課題1と課題2に別のチャンクを書き込む
	countA, err := index.IndexChunks(ctx, 1,
		[]string{"alpha chunk", "beta chunk"},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		map[string]any{"filename": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, countA)

	countB, err := index.IndexChunks(ctx, 2,
		[]string{"other assignment chunk"},
		[][]float32{{1, 0, 0}},
		map[string]any{"filename": "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, countB)

	// 検索は課題スコープ内に限定される
	results, err := index.Search(ctx, 1, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha chunk", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "a.txt", results[0].Metadata["filename"])

	// topKで件数が制限される
	limited, err := index.Search(ctx, 1, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// チャンク/ベクトル数の不一致は拒否される
	_, err = index.IndexChunks(ctx, 1, []string{"x"}, nil, nil)
	assert.Error(t, err)

	// 課題削除は対象スコープのみ消す（冪等）
	require.NoError(t, index.DeleteByAssignment(ctx, 1))
	require.NoError(t, index.DeleteByAssignment(ctx, 1))

	results, err = index.Search(ctx, 1, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	remaining, err := index.Search(ctx, 2, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
