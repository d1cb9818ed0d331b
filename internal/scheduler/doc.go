// Package scheduler вычисляет расписания и находит due jobs.
//
// Структура:
//   - schedule.go  — NextRun: cron, абсолютный момент и интервал
//   - scheduler.go — Scheduler.Tick: захват due jobs и создание runs
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Jobs:     jobRepo,
//	    Runs:     runRepo,
//	    Enqueuer: manager,
//	    Logger:   logger,
//	})
//
//	// Цикл опроса с периодической очисткой старых runs
//	sched.Run(ctx, time.Second, time.Hour)
//
// Интервалы:
//
// Интервал ("30s", "5m", "1h", "2d") отсчитывается от момента вычисления,
// а не от фиксированной точки. После run это момент его завершения, поэтому
// время выполнения накапливается: job "30s", работающий 7 секунд, запускается
// раз в 37 секунд.
//
// Cron:
//
// Стандартные 5 полей. В поле дня недели воскресенье можно задать как 0 или 7,
// как в crontab: "0 0 * * 7", "0 9 * * 5-7".
//
// Конкурентность:
//
// Несколько процессов tempo-scheduler могут опрашивать одну БД одновременно.
// Каждый job захватывается через SELECT ... FOR UPDATE SKIP LOCKED,
// поэтому один due job порождает ровно один run. Leader election не нужен.
package scheduler
