// Package cli реализует инструмент командной строки Tempo.
//
// # Обзор
//
// CLI — клиентская утилита для Tempo API. Работает только через HTTP
// и не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Tempo API. Инкапсулирует запросы, разбор ответов
// ({data}, {data, total, page, size}, {error}) и заголовок X-API-Key.
// Ошибки API возвращаются как *APIError с HTTP-статусом и кодом.
//
//	client := cli.NewClient("http://localhost:8080", os.Getenv("TEMPO_API_KEY"))
//	jobs, page, err := client.ListJobs(cli.ListOpts{Status: "active"})
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения в stderr:
//
//	tempo job list --json | jq '.[].next_run'
//
// ## Commands
//
//   - job: list, create, show, update, delete, pause, resume, run
//   - run: list JOB_ID, show RUN_ID
//
// Группы создаются фабриками (NewJobCmd, NewRunCmd), которые принимают
// clientFn и outputFn: Client и Output создаются лениво, после разбора
// PersistentFlags.
package cli
